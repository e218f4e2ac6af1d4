// Package registry models devices owned by the device registry and
// provides the HTTP client for reading and updating them.
//
// The operator never invents device identity: devices are created,
// changed and deleted by external actors. The only mutation this
// operator performs is toggling the twin finalizer on a device's
// metadata, which blocks final deletion until twin-side cleanup is
// confirmed complete.
package registry
