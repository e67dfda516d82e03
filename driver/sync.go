package driver

// Sync is a set of pipeline stages used as a synchronization scope.
type Sync int

const (
	SyncVertexInput Sync = 1 << iota
	SyncVertexShading
	SyncFragmentShading
	SyncComputeShading
	SyncColorOutput
	SyncDSOutput
	SyncCopy
	SyncHost
	SyncAll
	SyncNone Sync = 0

	SyncDraw = SyncVertexInput | SyncVertexShading | SyncFragmentShading | SyncColorOutput | SyncDSOutput
)

// Covers reports whether s includes every stage in o. SyncAll covers
// everything.
func (s Sync) Covers(o Sync) bool {
	if s&SyncAll != 0 {
		return true
	}
	return s&o == o
}

// Access is a set of memory access types.
type Access int

const (
	AccessVertexRead Access = 1 << iota
	AccessIndexRead
	AccessUniformRead
	AccessShaderRead
	AccessShaderWrite
	AccessColorRead
	AccessColorWrite
	AccessDSRead
	AccessDSWrite
	AccessCopyRead
	AccessCopyWrite
	AccessHostRead
	AccessHostWrite
	AccessAnyRead
	AccessAnyWrite
	AccessNone Access = 0
)

// Covers reports whether a includes o. The Any bits cover every read or
// write respectively.
func (a Access) Covers(o Access) bool {
	const reads = AccessVertexRead | AccessIndexRead | AccessUniformRead | AccessShaderRead |
		AccessColorRead | AccessDSRead | AccessCopyRead | AccessHostRead
	const writes = AccessShaderWrite | AccessColorWrite | AccessDSWrite | AccessCopyWrite | AccessHostWrite
	x := a
	if a&AccessAnyRead != 0 {
		x |= reads
	}
	if a&AccessAnyWrite != 0 {
		x |= writes
	}
	return x&o == o
}

// Layout is an image layout.
type Layout int

const (
	LayoutUndefined Layout = iota
	LayoutGeneral
	LayoutColorTarget
	LayoutDSTarget
	LayoutDSRead
	LayoutShaderRead
	LayoutCopySrc
	LayoutCopyDst
	LayoutPresent
)

func (l Layout) String() string {
	switch l {
	case LayoutUndefined:
		return "undefined"
	case LayoutGeneral:
		return "general"
	case LayoutColorTarget:
		return "color-target"
	case LayoutDSTarget:
		return "ds-target"
	case LayoutDSRead:
		return "ds-read"
	case LayoutShaderRead:
		return "shader-read"
	case LayoutCopySrc:
		return "copy-src"
	case LayoutCopyDst:
		return "copy-dst"
	case LayoutPresent:
		return "present"
	}
	return "invalid"
}

// Barrier is an execution and memory dependency.
type Barrier struct {
	SyncBefore   Sync
	SyncAfter    Sync
	AccessBefore Access
	AccessAfter  Access
}

// MemoryBarrier applies to all memory.
type MemoryBarrier = Barrier

// ImageBarrier applies to one image and may transition its layout.
type ImageBarrier struct {
	Barrier

	Image        Image
	LayoutBefore Layout
	LayoutAfter  Layout
}

// BufferBarrier applies to a range of one buffer. Size 0 means the whole
// buffer from Offset.
type BufferBarrier struct {
	Barrier

	Buffer Buffer
	Offset uint64
	Size   uint64
}
