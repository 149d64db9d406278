package auth

// Recorder receives counters for credential and session activity. The
// metrics package provides a Prometheus implementation.
type Recorder interface {
	SessionCreated()
	SessionsEvicted(n int)
	SessionsExpired(n int)
	SessionCount(n int)
	PasswordMigration(ok bool)
}

type nopRecorder struct{}

func (nopRecorder) SessionCreated()        {}
func (nopRecorder) SessionsEvicted(int)    {}
func (nopRecorder) SessionsExpired(int)    {}
func (nopRecorder) SessionCount(int)       {}
func (nopRecorder) PasswordMigration(bool) {}
