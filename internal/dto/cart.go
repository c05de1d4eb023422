package dto

type AddCartLineRequest struct {
	VariantID string `json:"variantId"`
	Quantity  int    `json:"quantity"`
}

type AddMenuBundleRequest struct {
	MenuID   string `json:"menuId"`
	Quantity int    `json:"quantity"`
}

type QuantityRequest struct {
	Quantity int `json:"quantity"`
}

type CartResponse struct {
	TraceID      string        `json:"traceId"`
	CartID       string        `json:"cartId,omitempty"`
	RestaurantID string        `json:"restaurantId,omitempty"`
	Lines        []CartLineDTO `json:"lines"`
	ItemCount    int           `json:"itemCount"`
	SubTotal     int64         `json:"subTotal"`
}

type CartLineDTO struct {
	LineID       string  `json:"lineId"`
	ProductID    string  `json:"productId"`
	ProductName  string  `json:"productName"`
	VariantID    string  `json:"variantId"`
	VariantLabel string  `json:"variantLabel"`
	Quantity     int     `json:"quantity"`
	UnitPrice    int64   `json:"unitPrice"`
	LineTotal    int64   `json:"lineTotal"`
	IsAvailable  bool    `json:"isAvailable"`
	MenuID       *string `json:"menuId,omitempty"`
	MenuGroupID  *string `json:"menuGroupId,omitempty"`
}

type MenuBundleResponse struct {
	TraceID     string `json:"traceId"`
	MenuGroupID string `json:"menuGroupId"`
}
