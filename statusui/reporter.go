package statusui

// Reporter is the user-facing sink of a vendoring run. Write carries
// informational lines, Error per-package failures and Green the final
// success line.
type Reporter struct{}

func NewReporter() *Reporter {
	return &Reporter{}
}

func (*Reporter) Write(msg string) {
	Log(msg, LogLevelInfo)
}

func (*Reporter) Green(msg string) {
	Log(msg, LogLevelSuccess)
}

func (*Reporter) Error(msg string) {
	Log(msg, LogLevelError)
}
