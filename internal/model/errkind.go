package model

// ErrorKind classifies recoverable errors for the errors_total counter.
type ErrorKind string

const (
	ErrKindConnectivity ErrorKind = "connectivity" // Ledger read failed
	ErrKindDecode       ErrorKind = "decode"       // Feed record had the wrong shape
	ErrKindResolution   ErrorKind = "resolution"   // Invitation or offer without a known feed
	ErrKindOffer        ErrorKind = "offer"        // Price push with unusable arguments or id
	ErrKindCheckpoint   ErrorKind = "checkpoint"   // Checkpoint save failed
)
