package monitor

// Key scopes a counter or timer to a mode.
type Key struct {
	Mode  string
	Label string
}

func (k Key) String() string {
	if k.Mode == "" {
		return k.Label
	}
	return k.Mode + "::" + k.Label
}
