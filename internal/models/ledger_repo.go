package models

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	PaymentsColName         = "payments"
	UpcomingPaymentsColName = "upcoming_payments"
)

type LedgerRepo interface {
	// InsertPayment stores p unless a payment for the same service already
	// exists. The stored payment is returned with created reporting which case
	// applied.
	InsertPayment(ctx context.Context, p *Payment) (stored *Payment, created bool, err error)
	GetPayment(ctx context.Context, id int64) (*Payment, error)
	GetPaymentByService(ctx context.Context, serviceID int64) (*Payment, error)
	ListPayments(ctx context.Context, f PaymentFilter) ([]*Payment, error)
	UpdatePaymentStatus(ctx context.Context, id int64, status string, at time.Time) (*Payment, error)
	UpsertUpcoming(ctx context.Context, u *UpcomingPayment) (*UpcomingPayment, error)
	ListUpcoming(ctx context.Context, empID int64) ([]*UpcomingPayment, error)
	// DeleteUpcomingByService is a no-op when no projection exists.
	DeleteUpcomingByService(ctx context.Context, serviceID int64) error
}

func (mdb *MongodbRepo) EnsureLedgerIndexes(ctx context.Context) error {
	payments, err := mdb.GetCollection(PaymentsColName)
	if err != nil {
		return err
	}
	_, err = payments.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "service_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("service_unique"),
		},
		{
			Keys:    bson.D{{Key: "emp_id", Value: 1}, {Key: "date", Value: -1}},
			Options: options.Index().SetName("emp_date_idx"),
		},
		{
			Keys:    bson.D{{Key: "emp_id", Value: 1}, {Key: "status", Value: 1}},
			Options: options.Index().SetName("emp_status_idx"),
		},
	})
	if err != nil {
		return fmt.Errorf("error creating payment indexes: %v", err)
	}

	upcoming, err := mdb.GetCollection(UpcomingPaymentsColName)
	if err != nil {
		return err
	}
	_, err = upcoming.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "service_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("service_unique"),
		},
		{
			Keys:    bson.D{{Key: "emp_id", Value: 1}, {Key: "scheduled_date", Value: 1}},
			Options: options.Index().SetName("emp_scheduled_idx"),
		},
	})
	if err != nil {
		return fmt.Errorf("error creating upcoming payment indexes: %v", err)
	}
	return nil
}

// insertOnlyFields turns v into a $setOnInsert document without the fields
// already pinned by the upsert filter.
func insertOnlyFields(v any, pinned ...string) (bson.M, error) {
	raw, err := bson.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc bson.M
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	for _, k := range pinned {
		delete(doc, k)
	}
	return doc, nil
}

func (mdb *MongodbRepo) InsertPayment(ctx context.Context, p *Payment) (*Payment, bool, error) {
	col, err := mdb.GetCollection(PaymentsColName)
	if err != nil {
		return nil, false, err
	}

	doc, err := insertOnlyFields(p, "service_id")
	if err != nil {
		return nil, false, fmt.Errorf("encode payment: %w", err)
	}

	filter := bson.M{"service_id": p.ServiceID}
	update := bson.M{"$setOnInsert": doc}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var stored Payment
	err = col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&stored)
	if mongo.IsDuplicateKeyError(err) {
		// a concurrent materialization won the insert
		existing, getErr := mdb.GetPaymentByService(ctx, p.ServiceID)
		if getErr != nil {
			return nil, false, getErr
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, storageErr("insert payment", err)
	}
	return &stored, stored.PaymentID == p.PaymentID, nil
}

func (mdb *MongodbRepo) GetPayment(ctx context.Context, id int64) (*Payment, error) {
	return mdb.findPayment(ctx, bson.M{"_id": id}, id)
}

func (mdb *MongodbRepo) GetPaymentByService(ctx context.Context, serviceID int64) (*Payment, error) {
	return mdb.findPayment(ctx, bson.M{"service_id": serviceID}, fmt.Sprintf("for service %d", serviceID))
}

func (mdb *MongodbRepo) findPayment(ctx context.Context, filter bson.M, id any) (*Payment, error) {
	col, err := mdb.GetCollection(PaymentsColName)
	if err != nil {
		return nil, err
	}
	var p Payment
	err = col.FindOne(ctx, filter).Decode(&p)
	if err == mongo.ErrNoDocuments {
		return nil, notFound("payment", id)
	}
	if err != nil {
		return nil, storageErr("get payment", err)
	}
	return &p, nil
}

func (mdb *MongodbRepo) ListPayments(ctx context.Context, f PaymentFilter) ([]*Payment, error) {
	col, err := mdb.GetCollection(PaymentsColName)
	if err != nil {
		return nil, err
	}

	filter := bson.M{"emp_id": f.EmpID}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	if f.From != nil || f.To != nil {
		dates := bson.M{}
		if f.From != nil {
			dates["$gte"] = *f.From
		}
		if f.To != nil {
			dates["$lte"] = *f.To
		}
		filter["date"] = dates
	}

	opts := options.Find().SetSort(bson.D{{Key: "date", Value: -1}, {Key: "_id", Value: -1}})
	if f.Limit > 0 {
		opts.SetLimit(int64(f.Limit))
	}

	cursor, err := col.Find(ctx, filter, opts)
	if err != nil {
		return nil, storageErr("list payments", err)
	}
	defer cursor.Close(ctx)

	payments := []*Payment{}
	if err := cursor.All(ctx, &payments); err != nil {
		return nil, storageErr("decode payments", err)
	}
	return payments, nil
}

func (mdb *MongodbRepo) UpdatePaymentStatus(ctx context.Context, id int64, status string, at time.Time) (*Payment, error) {
	col, err := mdb.GetCollection(PaymentsColName)
	if err != nil {
		return nil, err
	}

	update := bson.M{"$set": bson.M{"status": status, "updated_at": at}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var p Payment
	err = col.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&p)
	if err == mongo.ErrNoDocuments {
		return nil, notFound("payment", id)
	}
	if err != nil {
		return nil, storageErr("update payment status", err)
	}
	return &p, nil
}

func (mdb *MongodbRepo) UpsertUpcoming(ctx context.Context, u *UpcomingPayment) (*UpcomingPayment, error) {
	col, err := mdb.GetCollection(UpcomingPaymentsColName)
	if err != nil {
		return nil, err
	}

	filter := bson.M{"service_id": u.ServiceID}
	update := bson.M{
		"$set": bson.M{
			"emp_id":           u.EmpID,
			"customer":         u.Customer,
			"service_type":     u.ServiceType,
			"estimated_amount": u.EstimatedAmount,
			"scheduled_date":   u.ScheduledDate,
			"status":           u.Status,
			"hours":            u.Hours,
			"address":          u.Address,
			"notes":            u.Notes,
			"updated_at":       u.UpdatedAt,
		},
		"$setOnInsert": bson.M{
			"_id":        u.UpcomingID,
			"created_at": u.CreatedAt,
		},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var stored UpcomingPayment
	err = col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&stored)
	if mongo.IsDuplicateKeyError(err) {
		err = col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&stored)
	}
	if err != nil {
		return nil, storageErr("upsert upcoming payment", err)
	}
	return &stored, nil
}

func (mdb *MongodbRepo) ListUpcoming(ctx context.Context, empID int64) ([]*UpcomingPayment, error) {
	col, err := mdb.GetCollection(UpcomingPaymentsColName)
	if err != nil {
		return nil, err
	}

	opts := options.Find().SetSort(bson.D{{Key: "scheduled_date", Value: 1}})
	cursor, err := col.Find(ctx, bson.M{"emp_id": empID}, opts)
	if err != nil {
		return nil, storageErr("list upcoming payments", err)
	}
	defer cursor.Close(ctx)

	upcoming := []*UpcomingPayment{}
	if err := cursor.All(ctx, &upcoming); err != nil {
		return nil, storageErr("decode upcoming payments", err)
	}
	return upcoming, nil
}

func (mdb *MongodbRepo) DeleteUpcomingByService(ctx context.Context, serviceID int64) error {
	col, err := mdb.GetCollection(UpcomingPaymentsColName)
	if err != nil {
		return err
	}
	if _, err := col.DeleteOne(ctx, bson.M{"service_id": serviceID}); err != nil {
		return storageErr("delete upcoming payment", err)
	}
	return nil
}
