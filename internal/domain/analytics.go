package domain

// Dashboard is the admin analytics summary. Amounts are in paise.
type Dashboard struct {
	Days              int            `json:"days"`
	Revenue           int64          `json:"revenue"`
	OrderCount        int            `json:"order_count"`
	AverageOrderValue int64          `json:"average_order_value"`
	CustomerCount     int            `json:"customer_count"`
	NewCustomers      int            `json:"new_customers"`
	OrdersByStatus    map[string]int `json:"orders_by_status"`
	RevenueByDay      []DailyRevenue `json:"revenue_by_day"`
	TopProducts       []TopProduct   `json:"top_products"`
	LowStock          []LowStockItem `json:"low_stock"`
}

// DailyRevenue is one point of the revenue series.
type DailyRevenue struct {
	Date    string `json:"date"`
	Revenue int64  `json:"revenue"`
	Orders  int    `json:"orders"`
}

// TopProduct is a best seller by units.
type TopProduct struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Units     int    `json:"units"`
	Revenue   int64  `json:"revenue"`
}

// LowStockItem is a product at or below the low-stock threshold.
type LowStockItem struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	SKU       string `json:"sku,omitempty"`
	Stock     int    `json:"stock"`
}
