package store

import (
	"context"
	"log"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.opentelemetry.io/otel/trace"

	"swap_service/domain"
)

const (
	TARGETING_DATABASE = "targeting"
)

type TargetingNeo4JStore struct {
	driver neo4j.DriverWithContext
	tracer trace.Tracer
}

func NewTargetingNeo4JStore(driver *neo4j.DriverWithContext, tracer trace.Tracer) domain.TargetingStore {
	return &TargetingNeo4JStore{
		driver: *driver,
		tracer: tracer,
	}
}

func (store *TargetingNeo4JStore) CreateLink(ctx context.Context, link *domain.TargetingLink) error {
	ctx, span := store.tracer.Start(ctx, "TargetingNeo4JStore.CreateLink")
	defer span.End()

	session := store.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: TARGETING_DATABASE})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx,
		func(transaction neo4j.ManagedTransaction) (any, error) {
			result, err := transaction.Run(ctx,
				"MERGE (s:Swap {id: $sourceId}) "+
					"MERGE (t:Swap {id: $targetId}) "+
					"CREATE (s)-[r:TARGETS {id: $id, status: $status, "+
					"createdAt: $createdAt, updatedAt: $updatedAt}]->(t) "+
					"RETURN r.id",
				map[string]any{
					"id":        link.ID,
					"sourceId":  link.SourceSwapId,
					"targetId":  link.TargetSwapId,
					"status":    string(link.Status),
					"createdAt": link.CreatedAt.UTC().Format(time.RFC3339),
					"updatedAt": link.UpdatedAt.UTC().Format(time.RFC3339),
				})
			if err != nil {
				log.Printf("TargetingNeo4JStore.CreateLink.Run() : %s", err)
				return nil, err
			}

			if result.Next(ctx) {
				return result.Record().Values[0], nil
			}

			return nil, result.Err()
		})
	if err != nil {
		log.Printf("TargetingNeo4JStore.CreateLink.ExecuteWrite() : %s\n", err)
		return err
	}

	return nil
}

func (store *TargetingNeo4JStore) UpdateLinkStatus(ctx context.Context, sourceSwapId, targetSwapId string, status domain.TargetingStatus) error {
	ctx, span := store.tracer.Start(ctx, "TargetingNeo4JStore.UpdateLinkStatus")
	defer span.End()

	session := store.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: TARGETING_DATABASE})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx,
		func(transaction neo4j.ManagedTransaction) (any, error) {
			_, err := transaction.Run(ctx,
				"MATCH (s:Swap {id: $sourceId})-[r:TARGETS]->(t:Swap {id: $targetId}) "+
					"SET r.status = $status, r.updatedAt = $updatedAt",
				map[string]any{
					"sourceId":  sourceSwapId,
					"targetId":  targetSwapId,
					"status":    string(status),
					"updatedAt": time.Now().UTC().Format(time.RFC3339),
				})
			if err != nil {
				log.Printf("TargetingNeo4JStore.UpdateLinkStatus.Run() : %s", err)
				return nil, err
			}

			return nil, nil
		})
	if err != nil {
		log.Printf("TargetingNeo4JStore.UpdateLinkStatus.ExecuteWrite() : %s", err)
		return err
	}

	return nil
}

func (store *TargetingNeo4JStore) GetIncoming(ctx context.Context, swapId string) ([]*domain.TargetingLink, error) {
	ctx, span := store.tracer.Start(ctx, "TargetingNeo4JStore.GetIncoming")
	defer span.End()

	return store.queryLinks(ctx,
		"MATCH (s:Swap)-[r:TARGETS]->(t:Swap {id: $swapId}) "+
			"RETURN r.id as id, s.id as sourceId, t.id as targetId, "+
			"r.status as status, r.createdAt as createdAt, r.updatedAt as updatedAt",
		swapId)
}

func (store *TargetingNeo4JStore) GetOutgoing(ctx context.Context, swapId string) ([]*domain.TargetingLink, error) {
	ctx, span := store.tracer.Start(ctx, "TargetingNeo4JStore.GetOutgoing")
	defer span.End()

	return store.queryLinks(ctx,
		"MATCH (s:Swap {id: $swapId})-[r:TARGETS]->(t:Swap) "+
			"WHERE r.status = 'active' OR r.status = 'accepted' "+
			"RETURN r.id as id, s.id as sourceId, t.id as targetId, "+
			"r.status as status, r.createdAt as createdAt, r.updatedAt as updatedAt",
		swapId)
}

func (store *TargetingNeo4JStore) CountIncoming(ctx context.Context, swapId string) (int, error) {
	ctx, span := store.tracer.Start(ctx, "TargetingNeo4JStore.CountIncoming")
	defer span.End()

	return store.countLinks(ctx,
		"MATCH (s:Swap)-[r:TARGETS]->(t:Swap {id: $swapId}) RETURN count(r) as total",
		swapId)
}

func (store *TargetingNeo4JStore) CountOutgoing(ctx context.Context, swapId string) (int, error) {
	ctx, span := store.tracer.Start(ctx, "TargetingNeo4JStore.CountOutgoing")
	defer span.End()

	return store.countLinks(ctx,
		"MATCH (s:Swap {id: $swapId})-[r:TARGETS]->(t:Swap) "+
			"WHERE r.status = 'active' OR r.status = 'accepted' "+
			"RETURN count(r) as total",
		swapId)
}

func (store *TargetingNeo4JStore) HasAcceptedLink(ctx context.Context, swapId string) (bool, error) {
	ctx, span := store.tracer.Start(ctx, "TargetingNeo4JStore.HasAcceptedLink")
	defer span.End()

	count, err := store.countLinks(ctx,
		"MATCH (a:Swap {id: $swapId})-[r:TARGETS {status: 'accepted'}]-(b:Swap) "+
			"RETURN count(r) as total",
		swapId)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (store *TargetingNeo4JStore) queryLinks(ctx context.Context, query string, swapId string) ([]*domain.TargetingLink, error) {
	session := store.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: TARGETING_DATABASE})
	defer session.Close(ctx)

	links, err := session.ExecuteRead(ctx, func(transaction neo4j.ManagedTransaction) (any, error) {
		result, err := transaction.Run(ctx, query, map[string]any{"swapId": swapId})
		if err != nil {
			log.Printf("TargetingNeo4JStore.queryLinks.Run() : %s", err)
			return nil, err
		}

		var links []*domain.TargetingLink
		for result.Next(ctx) {
			record := result.Record()
			id, _ := record.Get("id")
			sourceId, _ := record.Get("sourceId")
			targetId, _ := record.Get("targetId")
			status, _ := record.Get("status")
			createdAt, _ := record.Get("createdAt")
			updatedAt, _ := record.Get("updatedAt")

			link := &domain.TargetingLink{
				ID:           asString(id),
				SourceSwapId: asString(sourceId),
				TargetSwapId: asString(targetId),
				Status:       domain.TargetingStatus(asString(status)),
				CreatedAt:    parseTimestamp(asString(createdAt)),
				UpdatedAt:    parseTimestamp(asString(updatedAt)),
			}
			links = append(links, link)
		}

		if err := result.Err(); err != nil {
			return nil, err
		}
		return links, nil
	})
	if err != nil {
		log.Printf("TargetingNeo4JStore.queryLinks.ExecuteRead() : %s", err)
		return nil, err
	}

	return links.([]*domain.TargetingLink), nil
}

func (store *TargetingNeo4JStore) countLinks(ctx context.Context, query string, swapId string) (int, error) {
	session := store.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: TARGETING_DATABASE})
	defer session.Close(ctx)

	count, err := session.ExecuteRead(ctx, func(transaction neo4j.ManagedTransaction) (any, error) {
		result, err := transaction.Run(ctx, query, map[string]any{"swapId": swapId})
		if err != nil {
			log.Printf("TargetingNeo4JStore.countLinks.Run() : %s", err)
			return nil, err
		}

		if result.Next(ctx) {
			total, _ := result.Record().Get("total")
			if n, ok := total.(int64); ok {
				return int(n), nil
			}
		}
		return 0, result.Err()
	})
	if err != nil {
		log.Printf("TargetingNeo4JStore.countLinks.ExecuteRead() : %s", err)
		return 0, err
	}

	return count.(int), nil
}

func asString(value any) string {
	if s, ok := value.(string); ok {
		return s
	}
	return ""
}

func parseTimestamp(value string) time.Time {
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}
	}
	return parsed
}
