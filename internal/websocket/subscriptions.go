package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"carpool-backend/internal/feed"
	"carpool-backend/internal/liveview"
	"carpool-backend/internal/models"
)

func subKey(table string, rideID uint) string {
	return fmt.Sprintf("%s:%d", table, rideID)
}

// rideFilter пропускает события одной поездки. DELETE не несет строки,
// поэтому проходит всегда: лишнее удаление в списке идемпотентно.
func rideFilter(rideID uint) feed.Filter {
	return func(change feed.Change) bool {
		if change.Op == feed.OpDelete {
			return true
		}
		var row struct {
			RideID uint `json:"ride_id"`
		}
		if err := json.Unmarshal(change.Payload, &row); err != nil {
			return false
		}
		return row.RideID == rideID
	}
}

// subscribe строит живой список по таблице и начинает слать клиенту его
// снимки: начальная выборка из базы плюс события ленты изменений.
// Повторная подписка с тем же ключом замещает прежнюю.
func (manager *Manager) subscribe(ctx context.Context, client *Client, table string, rideID uint) error {
	subCtx, cancel := context.WithCancel(ctx)

	var err error
	switch table {
	case "rides":
		err = manager.streamRides(subCtx, client)
	case "bookings":
		err = manager.streamBookings(subCtx, client, rideID)
	case "messages":
		err = manager.streamMessages(subCtx, client, rideID)
	case "live_locations":
		err = manager.streamLocations(subCtx, client, rideID)
	default:
		err = fmt.Errorf("неизвестная таблица: %s", table)
	}
	if err != nil {
		cancel()
		return err
	}

	client.storeSubscription(subKey(table, rideID), cancel)
	return nil
}

// stream связывает живой список с соединением клиента: отправляет
// начальный снимок, подписывается на ленту и шлет снимок после каждого
// учтенного события до отмены контекста
func stream[T any](ctx context.Context, manager *Manager, client *Client,
	table string, rideID uint, cfg liveview.Config[T], initial []T,
	filter feed.Filter, refetch liveview.Refetcher[T]) {

	snapshot := func(items []T) {
		client.write(&Message{
			Type: SnapshotMessageType,
			Payload: gin.H{
				"table":   table,
				"ride_id": rideID,
				"items":   items,
			},
		})
	}

	cfg.OnChange = snapshot
	view := liveview.NewView(cfg, initial)
	snapshot(view.Items())

	sub := manager.bus.Subscribe(table, filter)
	go func() {
		defer sub.Unsubscribe()
		view.Consume(ctx, sub, refetch)
	}()
}

// streamRides ведет список запланированных поездок, новые сверху
func (manager *Manager) streamRides(ctx context.Context, client *Client) error {
	if manager.db == nil || manager.bus == nil {
		return errors.New("подписки недоступны")
	}

	var rides []models.Ride
	if err := manager.db.Preload("Driver").
		Where("status = ?", models.RideStatusScheduled).
		Order("departure_date ASC").
		Find(&rides).Error; err != nil {
		return errors.New("ошибка при загрузке поездок")
	}

	rows := make([]models.RideResponse, 0, len(rides))
	for _, ride := range rides {
		booked, err := manager.countBookedSeats(ctx, ride.ID)
		if err != nil {
			return errors.New("ошибка при загрузке поездок")
		}
		rows = append(rows, models.RideToResponse(ride, booked))
	}

	refetch := func(ctx context.Context, id uint) (models.RideResponse, bool, error) {
		var ride models.Ride
		err := manager.db.WithContext(ctx).Preload("Driver").First(&ride, id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.RideResponse{}, false, nil
		}
		if err != nil {
			return models.RideResponse{}, false, err
		}
		booked, err := manager.countBookedSeats(ctx, ride.ID)
		if err != nil {
			return models.RideResponse{}, false, err
		}
		return models.RideToResponse(ride, booked), true, nil
	}

	stream(ctx, manager, client, "rides", 0, liveview.Config[models.RideResponse]{
		ID:    func(r models.RideResponse) uint { return r.ID },
		Order: liveview.OrderPrepend,
	}, rows, nil, refetch)
	return nil
}

// streamBookings ведет список бронирований поездки для ее водителя
func (manager *Manager) streamBookings(ctx context.Context, client *Client, rideID uint) error {
	if rideID == 0 {
		return errors.New("требуется ride_id")
	}
	if manager.db == nil || manager.bus == nil {
		return errors.New("подписки недоступны")
	}

	ride, err := manager.loadRide(ctx, rideID)
	if err != nil {
		return err
	}
	if ride.DriverID != client.userID {
		return errors.New("только водитель видит бронирования поездки")
	}

	var bookings []models.Booking
	if err := manager.db.WithContext(ctx).Preload("Passenger").
		Where("ride_id = ?", rideID).
		Order("created_at ASC").
		Find(&bookings).Error; err != nil {
		return errors.New("ошибка при загрузке бронирований")
	}

	rows := make([]models.BookingResponse, 0, len(bookings))
	for _, booking := range bookings {
		rows = append(rows, models.BookingToResponse(booking))
	}

	refetch := func(ctx context.Context, id uint) (models.BookingResponse, bool, error) {
		var booking models.Booking
		err := manager.db.WithContext(ctx).Preload("Passenger").First(&booking, id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.BookingResponse{}, false, nil
		}
		if err != nil {
			return models.BookingResponse{}, false, err
		}
		return models.BookingToResponse(booking), true, nil
	}

	stream(ctx, manager, client, "bookings", rideID, liveview.Config[models.BookingResponse]{
		ID:    func(b models.BookingResponse) uint { return b.ID },
		Order: liveview.OrderAppend,
	}, rows, rideFilter(rideID), refetch)
	return nil
}

// streamMessages ведет чат поездки для ее участников, новые снизу
func (manager *Manager) streamMessages(ctx context.Context, client *Client, rideID uint) error {
	if rideID == 0 {
		return errors.New("требуется ride_id")
	}
	if manager.db == nil || manager.bus == nil {
		return errors.New("подписки недоступны")
	}

	ride, err := manager.loadRide(ctx, rideID)
	if err != nil {
		return err
	}
	if !manager.isParticipant(ctx, ride, client.userID) {
		return errors.New("чат доступен только участникам поездки")
	}

	var messages []models.Message
	if err := manager.db.WithContext(ctx).Preload("Sender").
		Where("ride_id = ?", rideID).
		Order("created_at ASC").
		Find(&messages).Error; err != nil {
		return errors.New("ошибка при загрузке сообщений")
	}

	rows := make([]models.MessageResponse, 0, len(messages))
	for _, message := range messages {
		rows = append(rows, models.MessageToResponse(message))
	}

	refetch := func(ctx context.Context, id uint) (models.MessageResponse, bool, error) {
		var message models.Message
		err := manager.db.WithContext(ctx).Preload("Sender").First(&message, id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.MessageResponse{}, false, nil
		}
		if err != nil {
			return models.MessageResponse{}, false, err
		}
		return models.MessageToResponse(message), true, nil
	}

	stream(ctx, manager, client, "messages", rideID, liveview.Config[models.MessageResponse]{
		ID:    func(m models.MessageResponse) uint { return m.ID },
		Order: liveview.OrderAppend,
	}, rows, rideFilter(rideID), refetch)
	return nil
}

// streamLocations ведет живые позиции участников поездки. Строка
// замещается по паре (поездка, пользователь): история не копится
func (manager *Manager) streamLocations(ctx context.Context, client *Client, rideID uint) error {
	if rideID == 0 {
		return errors.New("требуется ride_id")
	}
	if manager.db == nil || manager.bus == nil {
		return errors.New("подписки недоступны")
	}

	ride, err := manager.loadRide(ctx, rideID)
	if err != nil {
		return err
	}
	if !manager.isParticipant(ctx, ride, client.userID) {
		return errors.New("позиции доступны только участникам поездки")
	}

	var locations []models.LiveLocation
	if err := manager.db.WithContext(ctx).
		Where("ride_id = ?", rideID).
		Order("updated_at ASC").
		Find(&locations).Error; err != nil {
		return errors.New("ошибка при загрузке позиций")
	}

	stream(ctx, manager, client, "live_locations", rideID, liveview.Config[models.LiveLocation]{
		ID:    func(l models.LiveLocation) uint { return l.ID },
		Order: liveview.OrderAppend,
		Key: func(l models.LiveLocation) string {
			return fmt.Sprintf("%d|%d", l.RideID, l.UserID)
		},
	}, locations, rideFilter(rideID), nil)
	return nil
}

func (manager *Manager) loadRide(ctx context.Context, rideID uint) (models.Ride, error) {
	var ride models.Ride
	err := manager.db.WithContext(ctx).First(&ride, rideID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Ride{}, errors.New("поездка не найдена")
	}
	if err != nil {
		return models.Ride{}, errors.New("ошибка при загрузке поездки")
	}
	return ride, nil
}

// isParticipant: водитель или пассажир с живым бронированием
func (manager *Manager) isParticipant(ctx context.Context, ride models.Ride, userID uint) bool {
	if ride.DriverID == userID {
		return true
	}

	var count int64
	manager.db.WithContext(ctx).Model(&models.Booking{}).
		Where("ride_id = ? AND passenger_id = ? AND status IN ?",
			ride.ID, userID,
			[]models.BookingStatus{models.BookingStatusPending, models.BookingStatusConfirmed}).
		Count(&count)
	return count > 0
}

// countBookedSeats считает занятые места по подтвержденным бронированиям
func (manager *Manager) countBookedSeats(ctx context.Context, rideID uint) (int, error) {
	var booked int64
	err := manager.db.WithContext(ctx).Model(&models.Booking{}).
		Where("ride_id = ? AND status = ?", rideID, models.BookingStatusConfirmed).
		Select("COALESCE(SUM(seats_count), 0)").
		Scan(&booked).Error
	return int(booked), err
}
