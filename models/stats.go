package models

import "github.com/shopspring/decimal"

type DashboardStats struct {
	TotalRevenue  decimal.Decimal `json:"total_revenue"`
	TotalOrders   int             `json:"total_orders"`
	TotalProducts int             `json:"total_products"`
	LowStockCount int             `json:"low_stock_count"`
}

type MonthlyRevenue struct {
	Name  string          `json:"name"`
	Total decimal.Decimal `json:"total"`
}
