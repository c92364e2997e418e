package registry

import (
	"fmt"

	consulapi "github.com/hashicorp/consul/api"
)

// Registration describes one listening endpoint of this process.
type Registration struct {
	// ID is unique per instance, see InstanceID.
	ID      string
	Name    string
	Address string
	Port    int
	Tags    []string
	Check   *consulapi.AgentServiceCheck
}

// ServiceRegistry defines the interface for service self-registration.
type ServiceRegistry interface {
	Register(reg Registration) error
	// Deregister removes a service instance using its unique ID.
	Deregister(id string) error
}

// InstanceID builds a stable identifier from the service name and listen address.
func InstanceID(name, host string, port int) string {
	return fmt.Sprintf("%s-%s-%d", name, host, port)
}
