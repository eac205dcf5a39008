package model

// ContainerStatus is the state of the model runtime environment reported by the backend.
type ContainerStatus struct {
	ContainerPresent bool
	IsInitializing   bool
	IsChangingModel  bool
}

// Ready returns true when the runtime can serve chat requests.
func (c ContainerStatus) Ready() bool {
	return c.ContainerPresent && !c.IsInitializing && !c.IsChangingModel
}

// TriggerResult is the acknowledgement of a fire-and-forget trigger request.
// A non empty ErrorMessage is an application level rejection.
type TriggerResult struct {
	ErrorMessage string
}

// Rejected returns true when the backend refused to start the operation.
func (t TriggerResult) Rejected() bool { return t.ErrorMessage != "" }
