package store

import (
	"context"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"swap_service/domain"
)

const (
	SWAP_COLLECTION = "swap_proposals"
)

type SwapMongoDBStore struct {
	proposals *mongo.Collection
	tracer    trace.Tracer
}

func NewSwapMongoDBStore(client *mongo.Client, tracer trace.Tracer) domain.SwapStore {
	proposals := client.Database(DATABASE).Collection(SWAP_COLLECTION)
	return &SwapMongoDBStore{
		proposals: proposals,
		tracer:    tracer,
	}
}

func (store *SwapMongoDBStore) GetProposal(ctx context.Context, id string) (*domain.SwapProposal, error) {
	ctx, span := store.tracer.Start(ctx, "SwapMongoDBStore.GetProposal")
	defer span.End()

	objectId, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, domain.ErrSwapNotFound
	}

	result := store.proposals.FindOne(ctx, bson.M{"_id": objectId})

	var proposal domain.SwapProposal
	if err := result.Decode(&proposal); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, domain.ErrSwapNotFound
		}
		span.SetStatus(codes.Error, err.Error())
		log.Println("Error decoding proposal:", err)
		return nil, err
	}

	return &proposal, nil
}

func (store *SwapMongoDBStore) InsertProposal(ctx context.Context, proposal *domain.SwapProposal) (*domain.SwapProposal, error) {
	ctx, span := store.tracer.Start(ctx, "SwapMongoDBStore.InsertProposal")
	defer span.End()

	if proposal.ID.IsZero() {
		proposal.ID = primitive.NewObjectID()
	}
	result, err := store.proposals.InsertOne(ctx, proposal)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	proposal.ID = result.InsertedID.(primitive.ObjectID)
	return proposal, nil
}

func (store *SwapMongoDBStore) DeleteProposal(ctx context.Context, id string) error {
	ctx, span := store.tracer.Start(ctx, "SwapMongoDBStore.DeleteProposal")
	defer span.End()

	objectId, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return domain.ErrSwapNotFound
	}

	_, err = store.proposals.DeleteOne(ctx, bson.M{"_id": objectId})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		log.Println("Error deleting proposal:", err)
	}
	return err
}

func (store *SwapMongoDBStore) PendingExists(ctx context.Context, sourceBookingId, targetBookingId string) (bool, error) {
	ctx, span := store.tracer.Start(ctx, "SwapMongoDBStore.PendingExists")
	defer span.End()

	filter := bson.M{
		"sourceBookingId": sourceBookingId,
		"targetBookingId": targetBookingId,
		"status":          domain.SwapPending,
	}
	count, err := store.proposals.CountDocuments(ctx, filter)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return false, err
	}
	return count > 0, nil
}

func (store *SwapMongoDBStore) HasOpenProposalForBooking(ctx context.Context, bookingId string) (bool, error) {
	ctx, span := store.tracer.Start(ctx, "SwapMongoDBStore.HasOpenProposalForBooking")
	defer span.End()

	filter := bson.M{
		"sourceBookingId": bookingId,
		"status":          bson.M{"$in": []domain.SwapStatus{domain.SwapPending, domain.SwapAccepted}},
	}
	count, err := store.proposals.CountDocuments(ctx, filter)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return false, err
	}
	return count > 0, nil
}

// UpdateStatus only applies while the proposal still holds the from status.
// A matched count of zero means another writer advanced the proposal first;
// that race loser gets ErrSwapNotPending.
func (store *SwapMongoDBStore) UpdateStatus(ctx context.Context, id string, from, to domain.SwapStatus, respondedAt *time.Time) error {
	ctx, span := store.tracer.Start(ctx, "SwapMongoDBStore.UpdateStatus")
	defer span.End()

	objectId, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return domain.ErrSwapNotFound
	}

	set := bson.M{"status": to}
	if respondedAt != nil {
		set["respondedAt"] = *respondedAt
	}

	filter := bson.M{"_id": objectId, "status": from}
	result, err := store.proposals.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		log.Println("Error updating proposal status:", err)
		return err
	}
	if result.MatchedCount == 0 {
		span.SetStatus(codes.Error, "Proposal status precondition failed")
		return domain.ErrSwapNotPending
	}

	return nil
}

func (store *SwapMongoDBStore) SetNotarizationRef(ctx context.Context, id string, transition domain.Transition, confirmationId string) error {
	ctx, span := store.tracer.Start(ctx, "SwapMongoDBStore.SetNotarizationRef")
	defer span.End()

	objectId, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return domain.ErrSwapNotFound
	}

	update := bson.M{"$set": bson.M{"notarizationRefs." + string(transition): confirmationId}}
	_, err = store.proposals.UpdateOne(ctx, bson.M{"_id": objectId}, update)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		log.Println("Error recording notarization reference:", err)
	}
	return err
}

func (store *SwapMongoDBStore) SetTransferConfirmation(ctx context.Context, id string, confirmationId string) error {
	ctx, span := store.tracer.Start(ctx, "SwapMongoDBStore.SetTransferConfirmation")
	defer span.End()

	objectId, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return domain.ErrSwapNotFound
	}

	update := bson.M{"$set": bson.M{"transferConfirmationId": confirmationId}}
	_, err = store.proposals.UpdateOne(ctx, bson.M{"_id": objectId}, update)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		log.Println("Error recording transfer confirmation:", err)
	}
	return err
}

func (store *SwapMongoDBStore) FindExpiredPending(ctx context.Context, now time.Time) ([]*domain.SwapProposal, error) {
	ctx, span := store.tracer.Start(ctx, "SwapMongoDBStore.FindExpiredPending")
	defer span.End()

	filter := bson.M{
		"status":    domain.SwapPending,
		"expiresAt": bson.M{"$lte": now},
	}

	cursor, err := store.proposals.Find(ctx, filter)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	defer cursor.Close(ctx)

	var proposals []*domain.SwapProposal
	for cursor.Next(ctx) {
		var proposal domain.SwapProposal
		if err := cursor.Decode(&proposal); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		proposals = append(proposals, &proposal)
	}
	if err := cursor.Err(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return proposals, nil
}
