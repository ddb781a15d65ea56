package handlers

import (
	"net/http"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/lib/pq"
	"go.uber.org/zap/zaptest"

	"storefront-svc/coupon"
	"storefront-svc/store"
)

var couponCols = []string{"code", "discount_percentage", "is_active", "valid_until", "created_at"}

func setupCouponTest(t *testing.T) (sqlmock.Sqlmock, *gin.Engine) {
	db, mock := newMockDB(t)
	logger := zaptest.NewLogger(t)
	service := coupon.NewService(store.NewCouponStore(db), store.NewOrderStore(db), logger)
	handler := NewCouponHandler(service, logger)

	router := gin.New()
	router.GET("/promo", handler.GetPromo)
	router.GET("/admin/coupons", handler.ListCoupons)
	router.POST("/admin/coupons", handler.CreateCoupon)
	router.PUT("/admin/coupons/:code/active", handler.SetCouponActive)
	return mock, router
}

func TestCouponHandler_CreateCoupon(t *testing.T) {
	mock, router := setupCouponTest(t)

	mock.ExpectQuery(`INSERT INTO coupons`).
		WithArgs("WELCOME10", 10, true, nil).
		WillReturnRows(sqlmock.NewRows(couponCols).AddRow("WELCOME10", 10, true, nil, time.Now()))

	w := performRequest(router, "POST", "/admin/coupons", map[string]any{"code": " welcome10 ", "discount_percentage": 10}, nil)

	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusCreated, w.Code, w.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestCouponHandler_CreateCoupon_Duplicate(t *testing.T) {
	mock, router := setupCouponTest(t)

	mock.ExpectQuery(`INSERT INTO coupons`).WillReturnError(&pq.Error{Code: "23505"})

	w := performRequest(router, "POST", "/admin/coupons", map[string]any{"code": "WELCOME10", "discount_percentage": 10}, nil)

	if w.Code != http.StatusConflict {
		t.Errorf("Expected status %d, got %d", http.StatusConflict, w.Code)
	}
}

func TestCouponHandler_CreateCoupon_BadPercentage(t *testing.T) {
	_, router := setupCouponTest(t)

	w := performRequest(router, "POST", "/admin/coupons", map[string]any{"code": "HALF", "discount_percentage": 150}, nil)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}

func TestCouponHandler_SetCouponActive(t *testing.T) {
	mock, router := setupCouponTest(t)

	mock.ExpectQuery(`UPDATE coupons SET is_active = \$1 WHERE code = \$2`).
		WithArgs(false, "WELCOME10").
		WillReturnRows(sqlmock.NewRows(couponCols).AddRow("WELCOME10", 10, false, nil, time.Now()))
	mock.ExpectQuery(`UPDATE coupons SET is_active = \$1 WHERE code = \$2`).
		WithArgs(true, "GHOST").
		WillReturnError(errNoRows())

	w := performRequest(router, "PUT", "/admin/coupons/welcome10/active", map[string]bool{"is_active": false}, nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	w = performRequest(router, "PUT", "/admin/coupons/ghost/active", map[string]bool{"is_active": true}, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status %d, got %d", http.StatusNotFound, w.Code)
	}
}

func TestCouponHandler_GetPromo(t *testing.T) {
	mock, router := setupCouponTest(t)

	mock.ExpectQuery(`FROM coupons\s+WHERE is_active = TRUE`).
		WillReturnRows(sqlmock.NewRows(couponCols).AddRow("SALE20", 20, true, nil, time.Now()))
	mock.ExpectQuery(`FROM coupons\s+WHERE is_active = TRUE`).
		WillReturnError(errNoRows())

	w := performRequest(router, "GET", "/promo", nil, nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	w = performRequest(router, "GET", "/promo", nil, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status %d, got %d", http.StatusNotFound, w.Code)
	}
}
