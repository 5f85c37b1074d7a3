package domain

// Actor is a named identity owning a collection of training images. Created at
// actor-creation time; balancing only changes its image set, never the record.
type Actor struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Age         int    `json:"age"`
	Sex         string `json:"sex"`
	Ethnicity   string `json:"ethnicity"`
	Description string `json:"description"`
	Outfit      string `json:"outfit"`
	// BaseImage is the reference portrait passed to the generation provider.
	BaseImage string `json:"base_image,omitempty"`
}
