package constants

import (
	"time"

	"github.com/Masterminds/semver/v3"
)

// ForwarderVersion is the release of this forwarder. It is part of the server
// identity sent in every frame.
var ForwarderVersion = semver.MustParse("1.0.0")

// ServerName is field 0 of every server originated frame.
var ServerName = "RacemapMyLapsServer_v" + ForwarderVersion.String()

// Protocol versions a MyLaps client may speak.
const (
	ProtocolVersion10 = "v1.0"
	ProtocolVersion21 = "v2.1"

	// SupportedProtocolVersions is the semver constraint a connection's
	// protocol version has to satisfy before its messages are handled.
	SupportedProtocolVersions = ">= 1.0, < 3.0"

	// HandshakeVersionTag is embedded into the AckPong answering a handshake.
	HandshakeVersionTag = "Version2.1"
)

const (
	DefaultListenPort            = 3097
	DefaultKeepAliveInterval     = 10 * time.Second
	DefaultStaleBufferThreshold  = 500 * time.Millisecond
	DefaultMaxBufferSize         = 1024 * 1024 // 1MB
	DefaultReceivedFramesHistory = 100
	DefaultUpstreamHost          = "https://racemap.com"
	DefaultUpstreamTimeout       = 10 * time.Second
	DefaultUpstreamWorkers       = 4
	DefaultUpstreamQueueSize     = 256
	DefaultHealthCheckInterval   = 5 * time.Minute
	DefaultMirrorQOS             = 1
)

// Listen modes select the bind address of the forwarder.
const (
	ListenModePrivate = "private" // loopback only
	ListenModePublic  = "public"  // all interfaces
)
