package character

type Character struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	LastName string `json:"lastName"`
}

type Input struct {
	Name     string `json:"name"`
	LastName string `json:"lastName"`
}
