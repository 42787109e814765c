package mediatool

// Operation is one of the fixed transcoder invocations.
type Operation int

const (
	// Repackage copies the streams unchanged into the container implied by
	// the destination extension.
	Repackage Operation = iota
	// StillFrame decodes the first frame and writes it as an image in the
	// format implied by the destination extension.
	StillFrame
	// Reencode produces H.264 video and AAC audio tuned for streaming.
	Reencode
)

func (o Operation) String() string {
	switch o {
	case Repackage:
		return "repackage"
	case StillFrame:
		return "still-frame"
	case Reencode:
		return "reencode"
	default:
		return "unknown"
	}
}

// Args returns the argument list for op, without the binary name.
//
//	repackage:   -hide_banner -nostdin -y -loglevel error -i SRC -c copy DST
//	still-frame: -hide_banner -nostdin -y -loglevel error -i SRC -frames:v 1 DST
//	reencode:    -hide_banner -nostdin -y -loglevel error -i SRC
//	             -c:v libx264 -crf 23 -preset fast -c:a aac -b:a 128k
//	             -movflags +faststart DST
func Args(op Operation, src, dst string) []string {
	args := []string{"-hide_banner", "-nostdin", "-y", "-loglevel", "error", "-i", src}

	switch op {
	case Repackage:
		args = append(args, "-c", "copy")
	case StillFrame:
		args = append(args, "-frames:v", "1")
	case Reencode:
		args = append(args,
			"-c:v", "libx264", "-crf", "23", "-preset", "fast",
			"-c:a", "aac", "-b:a", "128k",
			"-movflags", "+faststart",
		)
	}

	return append(args, dst)
}
