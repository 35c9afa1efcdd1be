package log

// Common field names for structured logging
const (
	FieldComponent    = "component"
	FieldError        = "error"
	FieldOperation    = "operation"
	FieldRunID        = "run_id"
	FieldMatchMode    = "match_mode"
	FieldVendorKey    = "vendor_key"
	FieldAmount       = "amount"
	FieldCount        = "count"
	FieldPattern      = "pattern"
	FieldSource       = "source"
	FieldSink         = "sink"
	FieldPath         = "path"
	FieldTransactions = "transactions"
	FieldVendors      = "vendors"
	FieldBuckets      = "buckets"
	FieldGroups       = "groups"
	FieldDropped      = "dropped"
	FieldDuration     = "duration_ms"
)

// Components defines standard component names
const (
	ComponentApp     = "app"
	ComponentDetect  = "detect"
	ComponentLedger  = "ledger"
	ComponentStorage = "storage"
	ComponentAMQP    = "amqp"
	ComponentWorker  = "worker"
	ComponentSheets  = "sheets"
	ComponentCache   = "cache"
	ComponentBackend = "backend"
	ComponentCLI     = "cli"
)

// Operations defines standard operation names
const (
	OpAnalyze  = "analyze"
	OpImport   = "import"
	OpRead     = "read"
	OpWrite    = "write"
	OpPublish  = "publish"
	OpConsume  = "consume"
	OpMigrate  = "migrate"
	OpShutdown = "shutdown"
	OpStartup  = "startup"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithComponent adds component field
func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithRun adds run identification fields
func (f LogFields) WithRun(runID, matchMode string) LogFields {
	f[FieldRunID] = runID
	f[FieldMatchMode] = matchMode
	return f
}

// WithGroup adds recurring-group fields
func (f LogFields) WithGroup(vendorKey, amount string, count int, pattern string) LogFields {
	f[FieldVendorKey] = vendorKey
	f[FieldAmount] = amount
	f[FieldCount] = count
	if pattern != "" {
		f[FieldPattern] = pattern
	}
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
