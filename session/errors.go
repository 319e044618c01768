package session

import "fmt"

// BootstrapError is a failure to set up a Session.
type BootstrapError struct {
	Err error
}

func (e *BootstrapError) Error() string {
	return fmt.Sprintf("bootstrapping: %s", e.Err)
}

func (e *BootstrapError) Unwrap() error {
	return e.Err
}

// JoinError is a failure to join the swarm of a drive.
type JoinError struct {
	Err error
}

func (e *JoinError) Error() string {
	return fmt.Sprintf("joining swarm: %s", e.Err)
}

func (e *JoinError) Unwrap() error {
	return e.Err
}

// TransferError is a failure of the mirror operation.
type TransferError struct {
	Err error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transferring: %s", e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}
