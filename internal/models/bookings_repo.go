package models

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const BookingsColName = "bookings"

type BookingRepo interface {
	// InsertBooking fails with ErrSlotConflict when another active booking
	// already holds the same slot key.
	InsertBooking(ctx context.Context, b *Booking) error
	GetBooking(ctx context.Context, id string) (*Booking, error)
	ListBookings(ctx context.Context, f BookingFilter) ([]*Booking, error)
	BookedSlots(ctx context.Context, q SlotQuery) ([]string, error)
	// UpdateBookingStatus applies p only while the booking is still in p.From.
	UpdateBookingStatus(ctx context.Context, id string, p BookingPatch) (*Booking, error)
	// SetBookingRating stores a rating only on a completed booking.
	SetBookingRating(ctx context.Context, id string, r BookingRating) (*Booking, error)
	DeleteBooking(ctx context.Context, id string) error
}

// SlotMatches reports whether an active slot key falls on the queried date and
// location. Empty city or area match any value.
func SlotMatches(key string, q SlotQuery) (string, bool) {
	parts := strings.Split(key, "|")
	if len(parts) != 4 {
		return "", false
	}
	if parts[0] != q.Date.UTC().Format(DateLayout) {
		return "", false
	}
	if q.City != "" && parts[2] != NormalizeSlot(q.City) {
		return "", false
	}
	if q.Area != "" && parts[3] != NormalizeSlot(q.Area) {
		return "", false
	}
	return parts[1], true
}

func (mdb *MongodbRepo) EnsureBookingIndexes(ctx context.Context) error {
	col, err := mdb.GetCollection(BookingsColName)
	if err != nil {
		return err
	}

	indexes := []mongo.IndexModel{
		// admission control: one active booking per slot key
		{
			Keys: bson.D{{Key: "active_slot", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"active_slot": bson.M{"$exists": true}}).
				SetName("active_slot_unique"),
		},
		{
			Keys:    bson.D{{Key: "customer_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("customer_created_idx"),
		},
		{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "schedule.preferred_date", Value: 1}},
			Options: options.Index().SetName("status_date_idx"),
		},
	}

	if _, err := col.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("error creating booking indexes: %v", err)
	}
	return nil
}

func (mdb *MongodbRepo) InsertBooking(ctx context.Context, b *Booking) error {
	col, err := mdb.GetCollection(BookingsColName)
	if err != nil {
		return err
	}

	if _, err := col.InsertOne(ctx, b); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s on %s", ErrSlotConflict, b.Schedule.TimeSlot, b.Schedule.PreferredDate.Format(DateLayout))
		}
		return storageErr("insert booking", err)
	}
	return nil
}

func (mdb *MongodbRepo) GetBooking(ctx context.Context, id string) (*Booking, error) {
	col, err := mdb.GetCollection(BookingsColName)
	if err != nil {
		return nil, err
	}

	var b Booking
	err = col.FindOne(ctx, bson.M{"_id": id}).Decode(&b)
	if err == mongo.ErrNoDocuments {
		return nil, notFound("booking", id)
	}
	if err != nil {
		return nil, storageErr("get booking", err)
	}
	return &b, nil
}

func (mdb *MongodbRepo) ListBookings(ctx context.Context, f BookingFilter) ([]*Booking, error) {
	col, err := mdb.GetCollection(BookingsColName)
	if err != nil {
		return nil, err
	}

	filter := bson.M{}
	if f.CustomerID != "" {
		filter["customer_id"] = f.CustomerID
	}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	if f.Date != nil {
		start := startOfDay(*f.Date)
		filter["schedule.preferred_date"] = bson.M{"$gte": start, "$lt": start.AddDate(0, 0, 1)}
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if f.Limit > 0 {
		opts.SetLimit(int64(f.Limit))
	}

	cursor, err := col.Find(ctx, filter, opts)
	if err != nil {
		return nil, storageErr("list bookings", err)
	}
	defer cursor.Close(ctx)

	bookings := []*Booking{}
	if err := cursor.All(ctx, &bookings); err != nil {
		return nil, storageErr("decode bookings", err)
	}
	return bookings, nil
}

func (mdb *MongodbRepo) BookedSlots(ctx context.Context, q SlotQuery) ([]string, error) {
	col, err := mdb.GetCollection(BookingsColName)
	if err != nil {
		return nil, err
	}

	prefix := "^" + regexp.QuoteMeta(q.Date.UTC().Format(DateLayout)+"|")
	opts := options.Find().SetProjection(bson.M{"active_slot": 1})
	cursor, err := col.Find(ctx, bson.M{"active_slot": bson.M{"$regex": prefix}}, opts)
	if err != nil {
		return nil, storageErr("booked slots", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		ActiveSlot string `bson:"active_slot"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, storageErr("decode booked slots", err)
	}

	slots := make([]string, 0, len(rows))
	for _, r := range rows {
		if slot, ok := SlotMatches(r.ActiveSlot, q); ok {
			slots = append(slots, slot)
		}
	}
	return slots, nil
}

func (mdb *MongodbRepo) UpdateBookingStatus(ctx context.Context, id string, p BookingPatch) (*Booking, error) {
	col, err := mdb.GetCollection(BookingsColName)
	if err != nil {
		return nil, err
	}

	set := bson.M{
		"status":     p.To,
		"updated_at": p.At,
	}
	if p.AssignedTo != nil {
		set["assigned_to"] = *p.AssignedTo
	}
	if p.WorkItemID != nil {
		set["work_item_id"] = *p.WorkItemID
	}
	if p.CancellationReason != nil {
		set["cancellation_reason"] = *p.CancellationReason
	}
	if p.CompletedAt != nil {
		set["completed_at"] = *p.CompletedAt
	}
	if p.PaymentStatus != nil {
		set["payment.status"] = *p.PaymentStatus
	}
	if p.PaymentDate != nil {
		set["payment.payment_date"] = *p.PaymentDate
	}

	update := bson.M{
		"$set": set,
		"$push": bson.M{"status_history": StatusChange{
			From: string(p.From), To: string(p.To), Actor: p.Actor, At: p.At,
		}},
	}
	if p.ReleaseSlot {
		update["$unset"] = bson.M{"active_slot": ""}
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var b Booking
	err = col.FindOneAndUpdate(ctx, bson.M{"_id": id, "status": p.From}, update, opts).Decode(&b)
	if err == mongo.ErrNoDocuments {
		return nil, mdb.explainBookingMiss(ctx, id, p.From)
	}
	if err != nil {
		return nil, storageErr("update booking status", err)
	}
	return &b, nil
}

// explainBookingMiss tells a missing booking apart from one whose status moved
// underneath a guarded update.
func (mdb *MongodbRepo) explainBookingMiss(ctx context.Context, id string, expected BookingStatus) error {
	current, err := mdb.GetBooking(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: booking %s is %s, expected %s", ErrInvalidTransition, id, current.Status, expected)
}

func (mdb *MongodbRepo) SetBookingRating(ctx context.Context, id string, r BookingRating) (*Booking, error) {
	col, err := mdb.GetCollection(BookingsColName)
	if err != nil {
		return nil, err
	}

	update := bson.M{"$set": bson.M{"rating": r, "updated_at": r.CreatedAt}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var b Booking
	err = col.FindOneAndUpdate(ctx, bson.M{"_id": id, "status": BookingCompleted}, update, opts).Decode(&b)
	if err == mongo.ErrNoDocuments {
		current, getErr := mdb.GetBooking(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		return nil, fmt.Errorf("%w: booking %s is %s, reviews need a completed booking", ErrPreconditionFailed, id, current.Status)
	}
	if err != nil {
		return nil, storageErr("rate booking", err)
	}
	return &b, nil
}

func (mdb *MongodbRepo) DeleteBooking(ctx context.Context, id string) error {
	col, err := mdb.GetCollection(BookingsColName)
	if err != nil {
		return err
	}

	res, err := col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return storageErr("delete booking", err)
	}
	if res.DeletedCount == 0 {
		return notFound("booking", id)
	}
	return nil
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
