package models

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	ServicesColName     = "services"
	ServiceNotesColName = "service_notes"
	ActivitiesColName   = "activities"
)

type ServiceRepo interface {
	InsertService(ctx context.Context, s *Service) error
	GetService(ctx context.Context, id int64) (*Service, error)
	GetServiceByBooking(ctx context.Context, bookingID string) (*Service, error)
	UpdateService(ctx context.Context, id int64, p ServicePatch) (*Service, error)
	ListServices(ctx context.Context, f ServiceFilter) ([]*Service, error)
	InsertNote(ctx context.Context, n *ServiceNote) error
	ListNotes(ctx context.Context, serviceID int64) ([]*ServiceNote, error)
	InsertActivity(ctx context.Context, a *Activity) error
	ListActivities(ctx context.Context, empID int64, limit int) ([]*Activity, error)
}

func (mdb *MongodbRepo) EnsureServiceIndexes(ctx context.Context) error {
	services, err := mdb.GetCollection(ServicesColName)
	if err != nil {
		return err
	}
	_, err = services.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "emp_id", Value: 1}, {Key: "scheduled_date", Value: 1}},
			Options: options.Index().SetName("emp_scheduled_idx"),
		},
		{
			Keys:    bson.D{{Key: "emp_id", Value: 1}, {Key: "status", Value: 1}},
			Options: options.Index().SetName("emp_status_idx"),
		},
		{
			Keys:    bson.D{{Key: "customer.email", Value: 1}, {Key: "status", Value: 1}, {Key: "scheduled_date", Value: -1}},
			Options: options.Index().SetName("customer_history_idx"),
		},
		{
			Keys: bson.D{{Key: "booking_id", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"booking_id": bson.M{"$exists": true}}).
				SetName("booking_unique"),
		},
	})
	if err != nil {
		return fmt.Errorf("error creating service indexes: %v", err)
	}

	notes, err := mdb.GetCollection(ServiceNotesColName)
	if err != nil {
		return err
	}
	_, err = notes.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "service_id", Value: 1}, {Key: "created_at", Value: -1}},
		Options: options.Index().SetName("service_created_idx"),
	})
	if err != nil {
		return fmt.Errorf("error creating note indexes: %v", err)
	}

	activities, err := mdb.GetCollection(ActivitiesColName)
	if err != nil {
		return err
	}
	_, err = activities.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "emp_id", Value: 1}, {Key: "created_at", Value: -1}},
		Options: options.Index().SetName("emp_created_idx"),
	})
	if err != nil {
		return fmt.Errorf("error creating activity indexes: %v", err)
	}
	return nil
}

func (mdb *MongodbRepo) InsertService(ctx context.Context, s *Service) error {
	col, err := mdb.GetCollection(ServicesColName)
	if err != nil {
		return err
	}
	if _, err := col.InsertOne(ctx, s); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: booking %s already has a work item", ErrPreconditionFailed, s.BookingID)
		}
		return storageErr("insert service", err)
	}
	return nil
}

func (mdb *MongodbRepo) GetService(ctx context.Context, id int64) (*Service, error) {
	return mdb.findService(ctx, bson.M{"_id": id}, id)
}

func (mdb *MongodbRepo) GetServiceByBooking(ctx context.Context, bookingID string) (*Service, error) {
	return mdb.findService(ctx, bson.M{"booking_id": bookingID}, bookingID)
}

func (mdb *MongodbRepo) findService(ctx context.Context, filter bson.M, id any) (*Service, error) {
	col, err := mdb.GetCollection(ServicesColName)
	if err != nil {
		return nil, err
	}
	var s Service
	err = col.FindOne(ctx, filter).Decode(&s)
	if err == mongo.ErrNoDocuments {
		return nil, notFound("service", id)
	}
	if err != nil {
		return nil, storageErr("get service", err)
	}
	return &s, nil
}

func (mdb *MongodbRepo) UpdateService(ctx context.Context, id int64, p ServicePatch) (*Service, error) {
	col, err := mdb.GetCollection(ServicesColName)
	if err != nil {
		return nil, err
	}

	set := bson.M{"updated_at": p.At}
	if p.Status != nil {
		set["status"] = *p.Status
	}
	if p.ScheduledDate != nil {
		set["scheduled_date"] = *p.ScheduledDate
	}
	if p.Time != nil {
		set["time"] = *p.Time
	}
	if p.StartedAt != nil {
		set["started_at"] = *p.StartedAt
	}
	if p.CompletedDate != nil {
		set["completed_date"] = *p.CompletedDate
	}
	if p.ActualEarnings != nil {
		set["actual_earnings"] = *p.ActualEarnings
	}
	if p.PaymentStatus != nil {
		set["payment_status"] = *p.PaymentStatus
	}
	if p.Notes != nil {
		set["notes"] = *p.Notes
	}
	if p.Priority != nil {
		set["priority"] = *p.Priority
	}
	if p.Duration != nil {
		set["duration"] = *p.Duration
	}
	if p.Estimated != nil {
		set["estimated_earnings"] = *p.Estimated
	}
	if p.Requirements != nil {
		set["special_requirements"] = p.Requirements
	}
	if p.Rating != nil {
		set["rating"] = *p.Rating
	}
	if p.Feedback != nil {
		set["feedback"] = *p.Feedback
	}

	update := bson.M{"$set": set}
	if p.ClearCompletion {
		update["$unset"] = bson.M{"completed_date": "", "actual_earnings": ""}
	}
	if p.AddAttachment != "" {
		update["$push"] = bson.M{"attachments": p.AddAttachment}
	}

	filter := bson.M{"_id": id}
	if len(p.From) > 0 {
		filter["status"] = bson.M{"$in": p.From}
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var s Service
	err = col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&s)
	if err == mongo.ErrNoDocuments {
		current, getErr := mdb.GetService(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		return nil, fmt.Errorf("%w: service %d is %s", ErrInvalidTransition, id, current.Status)
	}
	if err != nil {
		return nil, storageErr("update service", err)
	}
	return &s, nil
}

func (mdb *MongodbRepo) ListServices(ctx context.Context, f ServiceFilter) ([]*Service, error) {
	col, err := mdb.GetCollection(ServicesColName)
	if err != nil {
		return nil, err
	}

	filter := bson.M{}
	if f.EmpID != 0 {
		filter["emp_id"] = f.EmpID
	}
	if f.CustomerEmail != "" {
		filter["customer.email"] = f.CustomerEmail
	}
	if f.ExcludeID != 0 {
		filter["_id"] = bson.M{"$ne": f.ExcludeID}
	}
	if len(f.Statuses) > 0 {
		filter["status"] = bson.M{"$in": f.Statuses}
	}
	if f.From != nil || f.To != nil {
		dates := bson.M{}
		if f.From != nil {
			dates["$gte"] = *f.From
		}
		if f.To != nil {
			dates["$lt"] = *f.To
		}
		filter["scheduled_date"] = dates
	}
	if f.Rated {
		filter["rating"] = bson.M{"$exists": true, "$ne": nil}
	}

	order := 1
	if f.NewestFirst {
		order = -1
	}
	opts := options.Find().SetSort(bson.D{{Key: "scheduled_date", Value: order}, {Key: "time", Value: order}})
	if f.Limit > 0 {
		opts.SetLimit(int64(f.Limit))
	}

	cursor, err := col.Find(ctx, filter, opts)
	if err != nil {
		return nil, storageErr("list services", err)
	}
	defer cursor.Close(ctx)

	services := []*Service{}
	if err := cursor.All(ctx, &services); err != nil {
		return nil, storageErr("decode services", err)
	}
	return services, nil
}

func (mdb *MongodbRepo) InsertNote(ctx context.Context, n *ServiceNote) error {
	col, err := mdb.GetCollection(ServiceNotesColName)
	if err != nil {
		return err
	}
	if _, err := col.InsertOne(ctx, n); err != nil {
		return storageErr("insert note", err)
	}
	return nil
}

func (mdb *MongodbRepo) ListNotes(ctx context.Context, serviceID int64) ([]*ServiceNote, error) {
	col, err := mdb.GetCollection(ServiceNotesColName)
	if err != nil {
		return nil, err
	}

	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: -1}})
	cursor, err := col.Find(ctx, bson.M{"service_id": serviceID}, opts)
	if err != nil {
		return nil, storageErr("list notes", err)
	}
	defer cursor.Close(ctx)

	notes := []*ServiceNote{}
	if err := cursor.All(ctx, &notes); err != nil {
		return nil, storageErr("decode notes", err)
	}
	return notes, nil
}

func (mdb *MongodbRepo) InsertActivity(ctx context.Context, a *Activity) error {
	col, err := mdb.GetCollection(ActivitiesColName)
	if err != nil {
		return err
	}
	if _, err := col.InsertOne(ctx, a); err != nil {
		return storageErr("insert activity", err)
	}
	return nil
}

func (mdb *MongodbRepo) ListActivities(ctx context.Context, empID int64, limit int) ([]*Activity, error) {
	col, err := mdb.GetCollection(ActivitiesColName)
	if err != nil {
		return nil, err
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := col.Find(ctx, bson.M{"emp_id": empID}, opts)
	if err != nil {
		return nil, storageErr("list activities", err)
	}
	defer cursor.Close(ctx)

	activities := []*Activity{}
	if err := cursor.All(ctx, &activities); err != nil {
		return nil, storageErr("decode activities", err)
	}
	return activities, nil
}
