package fsutil

// File and directory permission constants.
const (
	// Default file modes.
	FileModeDefault = 0o644 // -rw-r--r--: Default for regular files
	FileModePrivate = 0o600 // -rw-------: Session token store

	// Directory modes.
	DirModeDefault = 0o755 // drwxr-xr-x: Default for directories
	DirModeSecure  = 0o750 // drwxr-x---: State directory

	// OwnerGroupRW is the read-write bits for owner and group, granted on the normalized tree.
	OwnerGroupRW = 0o660
	// OwnerGroupX is the execute bits for owner and group.
	OwnerGroupX = 0o110
	// ExecBits is every execute bit.
	ExecBits = 0o111
)
