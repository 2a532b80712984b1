package server

import (
	"github.com/labstack/echo/v4"
)

func registerRoutes(
	e *echo.Echo,
	handler *BudgetHandler,
	authMiddleware echo.MiddlewareFunc,
	spendRateLimiter echo.MiddlewareFunc,
) {
	e.GET("/health", Health)

	api := e.Group("/api/v1")

	budget := api.Group("/budget", authMiddleware)
	budget.POST("", handler.Initialize)
	budget.GET("", handler.Summary)
	budget.PUT("/strict-mode", handler.SetStrictMode)
	budget.POST("/subdivisions", handler.AddSubDivision)
	budget.GET("/subdivisions", handler.ListSubDivisions)

	spend := budget.Group("/spend", spendRateLimiter)
	spend.POST("/subdivision", handler.SpendFromSubDivision)
	spend.POST("/category", handler.SpendFromCategory)
	spend.POST("/general", handler.SpendFromGeneral)
}
