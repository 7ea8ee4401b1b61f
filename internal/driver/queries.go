package driver

// IndexQueries are run before loading records.
var IndexQueries = []string{
	"CREATE INDEX ON :Entity(id);",
	"CREATE INDEX ON :Entity(schema);",
}

const (
	// SaveRecordNodeQuery upserts one record. Properties are stored as a
	// JSON document since values are lists of mixed scalars.
	SaveRecordNodeQuery = `
		MERGE (n:Entity {id: $id})
		SET n.schema = $schema,
			n.caption = $caption,
			n.properties = $properties,
			n.placeholder = false
		RETURN n.id AS id
	`

	// SaveReferenceEdgesQuery links a record to every record it references.
	// Targets not loaded yet are created as placeholders and completed when
	// their own record arrives.
	SaveReferenceEdgesQuery = `
		MATCH (source:Entity {id: $source_id})
		UNWIND $edges AS edge
		MERGE (target:Entity {id: edge.target_id})
		ON CREATE SET target.placeholder = true
		MERGE (source)-[e:REFERENCES {property: edge.property}]->(target)
		RETURN count(e) AS edges
	`

	CountEntitiesQuery = `
		MATCH (n:Entity) WHERE n.placeholder = false
		RETURN count(n) AS count
	`

	GetReferencesQuery = `
		MATCH (source:Entity {id: $id})-[e:REFERENCES]->(target:Entity)
		RETURN e.property AS property, target.id AS target_id
		ORDER BY property, target_id
	`
)
