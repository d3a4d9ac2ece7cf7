package port

// QueryGate validates untrusted SQL and returns the only text allowed to
// reach a QueryExecutor.
type QueryGate interface {
	ValidateAndRewrite(sql string) (string, error)
}
