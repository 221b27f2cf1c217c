// Package stageregistry registers the built-in reconstruction stages.
// Site-specific stages live in separate modules and register themselves
// with the same stage.Registry before the server starts.
package stageregistry

import (
	"errors"

	"github.com/casemr/gadgetron/gadgets/accumulate"
	"github.com/casemr/gadgetron/gadgets/passthrough"
	"github.com/casemr/gadgetron/gadgets/removeoversampling"
	"github.com/casemr/gadgetron/gadgets/scale"
	"github.com/casemr/gadgetron/stage"

	pkgerrors "github.com/casemr/gadgetron/errors"
)

// Register adds every built-in stage to the provided registry:
//
//   - passthrough: identity forwarding, optional delay
//   - remove-oversampling: centered readout crop
//   - accumulate: per-slice buffering into a magnitude image
//   - scale: pixel scaling of float32 images
func Register(registry *stage.Registry) error {
	if registry == nil {
		return pkgerrors.WrapConfig(
			errors.New("registry cannot be nil"),
			"StageRegistry", "Register", "registry validation")
	}

	if err := passthrough.Register(registry); err != nil {
		return pkgerrors.WrapConfig(err, "StageRegistry", "Register", "passthrough registration")
	}
	if err := removeoversampling.Register(registry); err != nil {
		return pkgerrors.WrapConfig(err, "StageRegistry", "Register", "remove-oversampling registration")
	}
	if err := accumulate.Register(registry); err != nil {
		return pkgerrors.WrapConfig(err, "StageRegistry", "Register", "accumulate registration")
	}
	if err := scale.Register(registry); err != nil {
		return pkgerrors.WrapConfig(err, "StageRegistry", "Register", "scale registration")
	}

	return nil
}
