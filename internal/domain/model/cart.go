package model

// CartItem is one line in a user's cart prior to checkout. Prices are looked
// up from the catalog at checkout time, not stored here.
type CartItem struct {
	UserID      string
	ProductID   string
	ProductType ProductType
	Quantity    int
}

// ProductSnapshot is what the catalog collaborator resolves for a product id.
// For variant packs CourseID names the owning course the pack belongs to.
type ProductSnapshot struct {
	ID       string
	Type     ProductType
	Title    string
	Price    int64 // minor units
	CourseID string
}
