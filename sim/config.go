package sim

import "github.com/revocd/smtrevoke/config"

// Config is the simulation/CA parameter set. It is a type alias onto
// config.Config: the ca and node packages need the same fields without
// importing sim (which imports both of them), so the struct itself
// lives in the dependency-free config package and is re-exported here
// under the name the rest of this module's documentation uses.
type Config = config.Config

// DefaultConfig returns the parameter set the original ships as its
// out-of-the-box SimConfig.
func DefaultConfig() Config { return config.Default() }
