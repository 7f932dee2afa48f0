package system

// Hook points around the whole tic body.
const (
	HookTicPre  = "tic:pre"
	HookTicPost = "tic:post"
)

// HookPoints is the closed, ordered set of hook points: tic:pre, then
// pre/post for every hooked phase in execution order, then tic:post.
func HookPoints() []string {
	points := []string{HookTicPre}
	for p := PhasePointer; p <= PhaseConsumption; p++ {
		points = append(points, PreHook(p), PostHook(p))
	}
	return append(points, HookTicPost)
}

func PreHook(p Phase) string  { return p.String() + ":pre" }
func PostHook(p Phase) string { return p.String() + ":post" }

// ValidHookPoint reports whether name belongs to HookPoints.
func ValidHookPoint(name string) bool {
	for _, p := range HookPoints() {
		if p == name {
			return true
		}
	}
	return false
}

// HookRunner executes whatever is registered at a hook point.
type HookRunner interface {
	RunHook(point string) error
}

type noHooks struct{}

func (noHooks) RunHook(string) error { return nil }
