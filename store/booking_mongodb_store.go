package store

import (
	"context"
	"log"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"swap_service/domain"
)

const (
	DATABASE           = "swap"
	BOOKING_COLLECTION = "bookings"
)

type BookingMongoDBStore struct {
	bookings *mongo.Collection
	tracer   trace.Tracer
}

func NewBookingMongoDBStore(client *mongo.Client, tracer trace.Tracer) domain.BookingStore {
	bookings := client.Database(DATABASE).Collection(BOOKING_COLLECTION)
	return &BookingMongoDBStore{
		bookings: bookings,
		tracer:   tracer,
	}
}

func (store *BookingMongoDBStore) GetBooking(ctx context.Context, id string) (*domain.Booking, error) {
	ctx, span := store.tracer.Start(ctx, "BookingMongoDBStore.GetBooking")
	defer span.End()

	objectId, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, domain.ErrBookingNotFound
	}

	result := store.bookings.FindOne(ctx, bson.M{"_id": objectId})

	var booking domain.Booking
	if err := result.Decode(&booking); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, domain.ErrBookingNotFound
		}
		span.SetStatus(codes.Error, err.Error())
		log.Println("Error decoding booking:", err)
		return nil, err
	}

	return &booking, nil
}

// LockBooking performs the advisory lock as a single conditional update:
// the filter requires the current status to still be available, so when two
// proposals race over the same booking exactly one update matches.
func (store *BookingMongoDBStore) LockBooking(ctx context.Context, id string, holder string) (*domain.Booking, error) {
	ctx, span := store.tracer.Start(ctx, "BookingMongoDBStore.LockBooking")
	defer span.End()

	objectId, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, domain.ErrBookingNotFound
	}

	filter := bson.M{"_id": objectId, "status": domain.BookingAvailable}
	update := bson.M{"$set": bson.M{"status": domain.BookingLocked, "lockedBy": holder}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	result := store.bookings.FindOneAndUpdate(ctx, filter, update, opts)

	var booking domain.Booking
	if err := result.Decode(&booking); err != nil {
		if err == mongo.ErrNoDocuments {
			// Distinguish a missing booking from one that lost the race.
			existing, getErr := store.GetBooking(ctx, id)
			if getErr != nil {
				return nil, getErr
			}
			span.SetStatus(codes.Error, "Booking not available for locking")
			log.Printf("booking %s not lockable, current status %s", id, existing.Status)
			return nil, domain.ErrBookingNotAvailable
		}
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	return &booking, nil
}

func (store *BookingMongoDBStore) UnlockBooking(ctx context.Context, id string, holder string) (*domain.Booking, error) {
	ctx, span := store.tracer.Start(ctx, "BookingMongoDBStore.UnlockBooking")
	defer span.End()

	objectId, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, domain.ErrBookingNotFound
	}

	filter := bson.M{"_id": objectId, "status": domain.BookingLocked, "lockedBy": holder}
	update := bson.M{
		"$set":   bson.M{"status": domain.BookingAvailable},
		"$unset": bson.M{"lockedBy": ""},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	result := store.bookings.FindOneAndUpdate(ctx, filter, update, opts)

	var booking domain.Booking
	if err := result.Decode(&booking); err != nil {
		if err == mongo.ErrNoDocuments {
			// Idempotent unlock: an already released booking is a no-op
			// success so that cleanup paths can retry safely.
			existing, getErr := store.GetBooking(ctx, id)
			if getErr != nil {
				return nil, getErr
			}
			if existing.Status == domain.BookingAvailable {
				return existing, nil
			}
			span.SetStatus(codes.Error, "Booking locked by another holder")
			return nil, domain.ErrBookingNotAvailable
		}
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	return &booking, nil
}

func (store *BookingMongoDBStore) MarkSwapped(ctx context.Context, id string) error {
	ctx, span := store.tracer.Start(ctx, "BookingMongoDBStore.MarkSwapped")
	defer span.End()

	objectId, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return domain.ErrBookingNotFound
	}

	filter := bson.M{"_id": objectId, "status": domain.BookingLocked}
	update := bson.M{
		"$set":   bson.M{"status": domain.BookingSwapped},
		"$unset": bson.M{"lockedBy": ""},
	}

	result, err := store.bookings.UpdateOne(ctx, filter, update)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		log.Println("Error marking booking swapped:", err)
		return err
	}
	if result.MatchedCount == 0 {
		span.SetStatus(codes.Error, "Booking not locked")
		return domain.ErrBookingNotAvailable
	}

	return nil
}
