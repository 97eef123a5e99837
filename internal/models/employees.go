package models

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const EmployeesColName = "employees"

type EmployeeStatistics struct {
	TotalEarnings float64 `bson:"total_earnings" json:"totalEarnings"`
	HoursWorked   float64 `bson:"hours_worked" json:"hoursWorked"`
}

// TechnicianStats is a rebuildable cache of figures derived from the ledger
// and the technician's work items.
type TechnicianStats struct {
	EmpID         int64              `bson:"_id" json:"empId"`
	Rating        float64            `bson:"rating" json:"rating"`
	RatedServices int                `bson:"rated_services" json:"ratedServices"`
	CompletedJobs int                `bson:"completed_jobs" json:"completedJobs"`
	Statistics    EmployeeStatistics `bson:"statistics" json:"statistics"`
	UpdatedAt     time.Time          `bson:"updated_at" json:"updatedAt"`
}

type EmployeeRepo interface {
	GetEmployeeStats(ctx context.Context, empID int64) (*TechnicianStats, error)
	SaveEmployeeStats(ctx context.Context, s *TechnicianStats) error
}

func (mdb *MongodbRepo) GetEmployeeStats(ctx context.Context, empID int64) (*TechnicianStats, error) {
	col, err := mdb.GetCollection(EmployeesColName)
	if err != nil {
		return nil, err
	}
	var s TechnicianStats
	err = col.FindOne(ctx, bson.M{"_id": empID}).Decode(&s)
	if err == mongo.ErrNoDocuments {
		return nil, notFound("employee stats", empID)
	}
	if err != nil {
		return nil, storageErr("get employee stats", err)
	}
	return &s, nil
}

func (mdb *MongodbRepo) SaveEmployeeStats(ctx context.Context, s *TechnicianStats) error {
	col, err := mdb.GetCollection(EmployeesColName)
	if err != nil {
		return err
	}
	opts := options.Replace().SetUpsert(true)
	if _, err := col.ReplaceOne(ctx, bson.M{"_id": s.EmpID}, s, opts); err != nil {
		return storageErr("save employee stats", err)
	}
	return nil
}
