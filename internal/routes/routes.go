package routes

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"carpool-backend/internal/feed"
	"carpool-backend/internal/geocode"
	"carpool-backend/internal/handlers"
	"carpool-backend/internal/middleware"
	"carpool-backend/internal/services"
	"carpool-backend/internal/websocket"
)

// Deps - зависимости обработчиков, собранные в main
type Deps struct {
	DB            *gorm.DB
	Bus           *feed.Bus
	Geocoder      *geocode.Client
	WhatsApp      *services.WhatsAppService
	Notifications *services.NotificationService
	WS            *websocket.Manager
}

func SetupRoutes(api *gin.RouterGroup, d Deps) {
	// Публичные маршруты для аутентификации
	auth := api.Group("/auth")
	{
		auth.POST("/register", handlers.AuthRegister(d.DB))
		auth.POST("/send-code", handlers.SendVerificationCode(d.WhatsApp))
		auth.POST("/verify-code", handlers.VerifyCode(d.DB, d.WhatsApp))
	}

	// Защищенные маршруты (требуют аутентификации)
	protected := api.Group("")
	protected.Use(middleware.JWTAuth())
	{
		// Текущий пользователь и профиль
		protected.GET("/user", handlers.GetCurrentUser(d.DB))
		protected.GET("/profile", handlers.UserGetProfile(d.DB))
		protected.PUT("/profile", handlers.UserUpdateProfile(d.DB))
		protected.PUT("/fcm-token", handlers.UpdateFCMToken(d.DB))

		// Документы водителя
		protected.POST("/driver/documents", handlers.DriverDocumentsSubmit(d.DB))
		protected.GET("/driver/documents", handlers.DriverDocumentsGet(d.DB))
		protected.PUT("/driver/documents/:id/status",
			middleware.AdminOnly(), handlers.DriverDocumentsUpdateStatus(d.DB, d.Notifications))
		protected.DELETE("/driver/documents", handlers.DriverDocumentsDelete(d.DB))

		// Расчет стоимости
		protected.POST("/fare/estimate", handlers.FareEstimate())
		protected.POST("/fare/range", handlers.FareSuggestedRange())

		// Поездки
		protected.POST("/rides", handlers.RideCreate(d.DB, d.Bus))
		protected.GET("/rides/mine", handlers.RideGetMine(d.DB))
		protected.GET("/rides/:id", handlers.RideGetByID(d.DB))
		protected.PUT("/rides/:id", handlers.RideUpdate(d.DB, d.Bus))
		protected.PUT("/rides/:id/start", handlers.RideStart(d.DB, d.Bus, d.Notifications))
		protected.PUT("/rides/:id/complete", handlers.RideComplete(d.DB, d.Bus, d.Notifications))
		protected.PUT("/rides/:id/cancel", handlers.RideCancel(d.DB, d.Bus, d.Notifications))
		protected.POST("/rides/search", handlers.RideSearch(d.DB))

		// Бронирования
		protected.POST("/bookings", handlers.BookingCreate(d.DB, d.Bus, d.Notifications))
		protected.GET("/bookings", handlers.BookingGetMine(d.DB))
		protected.GET("/rides/:id/bookings", handlers.BookingGetForRide(d.DB))
		protected.PUT("/bookings/:id/confirm", handlers.BookingConfirm(d.DB, d.Bus, d.Notifications))
		protected.PUT("/bookings/:id/reject", handlers.BookingReject(d.DB, d.Bus, d.Notifications))
		protected.PUT("/bookings/:id/cancel", handlers.BookingCancel(d.DB, d.Bus, d.Notifications))

		// Живые позиции участников поездки
		protected.POST("/rides/:id/location", handlers.LiveLocationPublish(d.DB, d.Bus))
		protected.GET("/rides/:id/locations", handlers.LiveLocationList(d.DB))

		// Чат поездки
		protected.POST("/rides/:id/messages", handlers.MessageSend(d.DB, d.Bus))
		protected.GET("/rides/:id/messages", handlers.MessageList(d.DB))

		// Уведомления
		protected.GET("/notifications", handlers.NotificationList(d.DB))
		protected.PUT("/notifications/read-all", handlers.NotificationMarkAllRead(d.DB))
		protected.PUT("/notifications/:id/read", handlers.NotificationMarkRead(d.DB))

		// Геокодирование
		protected.POST("/addresses/search", handlers.SearchAddress(d.Geocoder))
		protected.GET("/addresses/reverse", handlers.ReverseGeocode(d.Geocoder))

		// Загрузка файлов
		protected.POST("/upload", handlers.UploadFile)

		// WebSocket подключение для обновлений в реальном времени
		protected.GET("/ws", d.WS.Handler())
	}
}
