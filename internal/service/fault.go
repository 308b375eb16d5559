package service

// Fault is a client-visible rejection of a single frame. The router renders
// it as an error frame and keeps the connection open.
type Fault struct {
	Code    string
	Message string
}

func (f *Fault) Error() string { return f.Code + ": " + f.Message }

func newFault(code, message string) *Fault {
	return &Fault{Code: code, Message: message}
}
