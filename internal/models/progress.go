package models

// EncryptionPhase is a stage of a hide operation.
type EncryptionPhase string

const (
	PhasePreparing  EncryptionPhase = "preparing"
	PhaseEncrypting EncryptionPhase = "encrypting"
	PhaseFinalizing EncryptionPhase = "finalizing"
)

// EncryptionProgress is reported while a bundle is hidden. Percentage never
// decreases within one operation.
type EncryptionProgress struct {
	Phase      EncryptionPhase
	Percentage int
}

// ProgressFunc receives progress updates. It is called from a single
// goroutine at a time and must not block for long.
type ProgressFunc func(EncryptionProgress)
