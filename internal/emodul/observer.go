package emodul

// Observer is notified about cache refreshes and control commands. It must
// not block; calls happen on the caller's goroutine.
type Observer interface {
	// RefreshCompleted is called after every refresh attempt; err is nil on success.
	RefreshCompleted(module string, err error)
	// CommandCompleted is called after every control command.
	CommandCompleted(command string, err error)
	// LanguageStringsLoaded reports the size of a freshly installed table.
	LanguageStringsLoaded(n int)
}

type nopObserver struct{}

func (nopObserver) RefreshCompleted(string, error) {}
func (nopObserver) CommandCompleted(string, error) {}
func (nopObserver) LanguageStringsLoaded(int)      {}
