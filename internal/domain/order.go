package domain

import "time"

// ProductType enumerates what gets burned onto the drive.
type ProductType string

const (
	ProductMusic  ProductType = "music"
	ProductVideos ProductType = "videos"
	ProductMovies ProductType = "movies"
)

// ShippingInfo is the shipping payload attached to an order.
type ShippingInfo struct {
	Name    string `json:"name" db:"shipping_name"`
	Address string `json:"address" db:"shipping_address"`
	City    string `json:"city" db:"shipping_city"`
}

// Complete reports whether both a name and an address were captured.
// A name alone or an address alone does not count as confirmed shipping.
func (s ShippingInfo) Complete() bool {
	return s.Name != "" && s.Address != ""
}

// Order is a USB drive order as the store persists it.
type Order struct {
	ID            string       `json:"id" db:"id"`
	OrderNumber   string       `json:"order_number" db:"order_number"`
	CustomerName  string       `json:"customer_name" db:"customer_name"`
	CustomerPhone string       `json:"customer_phone" db:"customer_phone"`
	ProductType   ProductType  `json:"product_type" db:"product_type"`
	Capacity      string       `json:"capacity" db:"capacity"`
	Genres        []string     `json:"genres" db:"genres"`
	Artists       []string     `json:"artists" db:"artists"`
	Status        string       `json:"status" db:"status"`
	Shipping      ShippingInfo `json:"shipping"`
	ConfirmedAt   *time.Time   `json:"confirmed_at" db:"confirmed_at"`
	CreatedAt     time.Time    `json:"created_at" db:"created_at"`
}

// Customer is the customer record kept alongside orders.
type Customer struct {
	ID      string `json:"id" db:"id"`
	Name    string `json:"name" db:"name"`
	Phone   string `json:"phone" db:"phone"`
	Address string `json:"address" db:"address"`
	City    string `json:"city" db:"city"`
}
