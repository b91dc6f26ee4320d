package discovery

import (
	"errors"
	"time"
)

// Service constants.
const (
	// ServiceType is the DNS-SD service type of a wirehome hub.
	ServiceType = "_wirehome._tcp"

	// Domain is the mDNS domain.
	Domain = "local."

	// DefaultPort is used when a hub is advertised without a port.
	DefaultPort = 8080

	// APIVersion is the advertised API version.
	APIVersion = "1"

	// APIPath is the advertised base path of the message bus API.
	APIPath = "/api/v1/message-bus"

	// MaxInstanceNameLen is the DNS label limit for instance names.
	MaxInstanceNameLen = 63
)

// TXT record keys.
const (
	TXTKeyVersion     = "ver"
	TXTKeyPath        = "path"
	TXTKeySubscribers = "subs"
)

// Errors.
var (
	ErrMissingRequired    = errors.New("missing required TXT record")
	ErrInvalidInstance    = errors.New("invalid instance name")
	ErrInvalidSubscribers = errors.New("invalid subscriber count")
	ErrNotAdvertising     = errors.New("not advertising")
)

// HubInfo describes the hub being advertised.
type HubInfo struct {
	InstanceName string
	Port         uint16
	Version      string
	Path         string

	// Subscribers is published when HasSubscribers is set.
	Subscribers    int
	HasSubscribers bool
}

// HubService is a hub found on the network.
type HubService struct {
	InstanceName string
	Host         string
	Port         uint16
	Addresses    []string
	Version      string
	Path         string
	Subscribers  int
}

// AdvertiserConfig configures an MDNSAdvertiser.
type AdvertiserConfig struct {
	// Interface restricts advertising to one network interface.
	Interface string

	// TTL overrides the record TTL.
	TTL time.Duration
}

// BrowserConfig configures an MDNSBrowser.
type BrowserConfig struct {
	Interface string
}
