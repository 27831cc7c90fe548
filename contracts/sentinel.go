package contracts

// Ack is the sentinel reply for manual-acknowledgement consumers. An actor
// handling a manual-ack exchange replies with Ack{} to complete the exchange
// successfully with an empty result.
type Ack struct{}

// Failure is the sentinel reply signalling that the actor could not process
// the exchange. The wrapped error becomes the cause of the failure surfaced
// to the caller.
type Failure struct {
	Err error
}

// Fail wraps an error in a Failure sentinel.
func Fail(err error) Failure {
	return Failure{Err: err}
}
