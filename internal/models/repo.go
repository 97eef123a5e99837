package models

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/supabase-community/supabase-go"
	"go.mongodb.org/mongo-driver/mongo"
)

var Validate = newValidator()

var phonePattern = regexp.MustCompile(`^\+?[0-9(][0-9\s\-()]{6,18}[0-9]$`)

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	})
	return v
}

// ValidateStruct runs the shared validator and converts its failures into a
// ValidationError naming every rejected field.
func ValidateStruct(s any) error {
	err := Validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &ValidationError{}
	for _, fe := range verrs {
		out.Add(fieldPath(fe.Namespace()), describe(fe))
	}
	return out
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(ns string) string {
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "phone":
		return "must be a valid phone number"
	case "datetime":
		return fmt.Sprintf("must be a valid date (%s)", fe.Param())
	case "oneof":
		return "must be one of: " + fe.Param()
	case "min", "gte":
		return "must be at least " + fe.Param()
	case "max", "lte":
		return "must be at most " + fe.Param()
	default:
		return "failed " + fe.Tag() + " check"
	}
}

type SupabaseRepo struct {
	supabaseClient *supabase.Client
}

func SupabaseNewRepo(supabaseClient *supabase.Client) *SupabaseRepo {
	return &SupabaseRepo{
		supabaseClient: supabaseClient,
	}
}

type MongodbRepo struct {
	mongodbClient *mongo.Client
	dbName        string
	transactions  bool
}

func MongodbNewRepo(mongodbClient *mongo.Client, dbName string, transactions bool) *MongodbRepo {
	return &MongodbRepo{
		mongodbClient: mongodbClient,
		dbName:        dbName,
		transactions:  transactions,
	}
}

func (mdb *MongodbRepo) GetCollection(colName string) (*mongo.Collection, error) {
	if mdb.mongodbClient == nil {
		return nil, fmt.Errorf("%w: mongodb client is not initialized", ErrStorageUnavailable)
	}
	return mdb.mongodbClient.Database(mdb.dbName).Collection(colName), nil
}

// WithTransaction runs fn inside a MongoDB transaction when the deployment
// supports them (replica set); otherwise fn runs directly and callers rely on
// ordering their writes so the trailing one is idempotent. A call made inside
// a running transaction joins it.
func (mdb *MongodbRepo) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if !mdb.transactions || mongo.SessionFromContext(ctx) != nil {
		return fn(ctx)
	}
	sess, err := mdb.mongodbClient.StartSession()
	if err != nil {
		return fmt.Errorf("%w: start session: %v", ErrStorageUnavailable, err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}

// Transactor groups paired writes into one logical unit.
type Transactor interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Sequencer hands out monotonically increasing ids per entity.
type Sequencer interface {
	NextID(ctx context.Context, name string) (int64, error)
}

// Store is everything the core needs from the backing store.
type Store interface {
	BookingRepo
	ServiceRepo
	LedgerRepo
	EmployeeRepo
	Sequencer
	Transactor
}

var (
	_ Store          = (*MongodbRepo)(nil)
	_ ReferenceStore = (*SupabaseRepo)(nil)
)

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %v", ErrStorageUnavailable, op, err)
}

// EnsureIndexes creates every index the repositories rely on, including the
// unique ones that enforce slot admission and one payment per service.
func (mdb *MongodbRepo) EnsureIndexes(ctx context.Context) error {
	for _, ensure := range []func(context.Context) error{
		mdb.EnsureBookingIndexes,
		mdb.EnsureServiceIndexes,
		mdb.EnsureLedgerIndexes,
	} {
		if err := ensure(ctx); err != nil {
			return err
		}
	}
	return nil
}
