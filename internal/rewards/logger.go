package rewards

// Logger is the subset of gologger.GoLogger used here.
type Logger interface {
	Info(message string)
	Warn(message string)
	Error(message string)
}

type nopLogger struct{}

func (nopLogger) Info(string)  {}
func (nopLogger) Warn(string)  {}
func (nopLogger) Error(string) {}
