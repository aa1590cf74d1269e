package storage

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Aggregation pipeline builders for the two cross-project read views. Both
// views are computed entirely inside the store: membership filter, child
// join, flatten, optional name filter, count, pagination, and the final
// envelope are all pipeline stages over the projects collection.
//
// Pagination is deliberately two-phase: the rows are collapsed into a single
// counting document before $skip/$limit runs, then re-flattened. Counting
// after pagination would report the page size instead of the filtered total,
// which silently corrupts totalPages.

// matchMember keeps projects the user belongs to. Members are stored as a
// map keyed by user id, so membership is a single field-existence test.
func matchMember(userID string) bson.D {
	return bson.D{{Key: "$match", Value: bson.D{
		{Key: "members." + userID, Value: bson.D{{Key: "$exists", Value: true}}},
	}}}
}

// lookupStages joins the stages collection into each project document.
func lookupStages() bson.D {
	return bson.D{{Key: "$lookup", Value: bson.D{
		{Key: "from", Value: "stages"},
		{Key: "localField", Value: "stages"},
		{Key: "foreignField", Value: "_id"},
		{Key: "as", Value: "stages"},
	}}}
}

// sortProjectsByRecency orders projects newest first before flattening, so
// stage rows inherit project recency order.
func sortProjectsByRecency() bson.D {
	return bson.D{{Key: "$sort", Value: bson.D{{Key: "created_date", Value: -1}}}}
}

// unwindStages flattens the joined stage array into one row per stage.
func unwindStages() bson.D {
	return bson.D{{Key: "$unwind", Value: "$stages"}}
}

// stripStageTasks drops each stage's task id list from the view rows.
func stripStageTasks() bson.D {
	return bson.D{{Key: "$project", Value: bson.D{{Key: "stages.tasks", Value: 0}}}}
}

// filterStageName applies the case-insensitive substring filter.
func filterStageName(name string) bson.D {
	return bson.D{{Key: "$match", Value: bson.D{
		{Key: "stages.name", Value: bson.D{
			{Key: "$regex", Value: name},
			{Key: "$options", Value: "i"},
		}},
	}}}
}

// groupCountStages collapses the filtered rows into one document carrying
// the row count and the rows themselves. This runs before pagination so the
// count covers the whole filtered set.
func groupCountStages() bson.D {
	return bson.D{{Key: "$group", Value: bson.D{
		{Key: "_id", Value: nil},
		{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		{Key: "stages", Value: bson.D{{Key: "$push", Value: "$stages"}}},
	}}}
}

// paginate applies the skip/limit window for a 1-based page number.
func paginate(page, limit int) []bson.D {
	return []bson.D{
		{{Key: "$skip", Value: limit * (page - 1)}},
		{{Key: "$limit", Value: limit}},
	}
}

// sortStagesByActualEnd orders the page rows by actual end date descending.
func sortStagesByActualEnd() bson.D {
	return bson.D{{Key: "$sort", Value: bson.D{{Key: "stages.end_date_actual", Value: -1}}}}
}

// groupStagePage re-collapses the paginated rows into the result envelope,
// carrying the pre-pagination total through.
func groupStagePage(page int) bson.D {
	return bson.D{{Key: "$group", Value: bson.D{
		{Key: "_id", Value: nil},
		{Key: "stages", Value: bson.D{{Key: "$push", Value: "$stages"}}},
		{Key: "currentPage", Value: bson.D{{Key: "$first", Value: page}}},
		{Key: "total", Value: bson.D{{Key: "$first", Value: "$count"}}},
	}}}
}

// projectStagePage shapes the final envelope and derives
// totalPages = ceil(total / limit) inside the store.
func projectStagePage(limit int) bson.D {
	return bson.D{{Key: "$project", Value: bson.D{
		{Key: "_id", Value: 0},
		{Key: "stages", Value: 1},
		{Key: "currentPage", Value: 1},
		{Key: "total", Value: 1},
		{Key: "totalPages", Value: bson.D{
			{Key: "$ceil", Value: bson.D{
				{Key: "$divide", Value: bson.A{"$total", limit}},
			}},
		}},
	}}}
}

// StageListPipeline builds the "all stages across my projects" view:
// membership filter, stage join, flatten, optional name filter, count,
// paginate, and the final envelope.
func StageListPipeline(p StageListParams) mongo.Pipeline {
	pipeline := mongo.Pipeline{
		matchMember(p.UserID),
		lookupStages(),
		sortProjectsByRecency(),
		unwindStages(),
		stripStageTasks(),
	}
	if p.Name != "" {
		pipeline = append(pipeline, filterStageName(p.Name))
	}
	pipeline = append(pipeline, groupCountStages(), unwindStages())
	pipeline = append(pipeline, paginate(p.Page, p.Limit)...)
	pipeline = append(pipeline,
		sortStagesByActualEnd(),
		groupStagePage(p.Page),
		projectStagePage(p.Limit),
	)
	return pipeline
}

// lookupStageTasks joins the tasks collection into each flattened stage row.
func lookupStageTasks() bson.D {
	return bson.D{{Key: "$lookup", Value: bson.D{
		{Key: "from", Value: "tasks"},
		{Key: "localField", Value: "stages.tasks"},
		{Key: "foreignField", Value: "_id"},
		{Key: "as", Value: "stages.tasks"},
	}}}
}

// unwindStageTasks flattens to one row per task.
func unwindStageTasks() bson.D {
	return bson.D{{Key: "$unwind", Value: "$stages.tasks"}}
}

// matchTaskParticipant keeps tasks the user created or is assigned to.
func matchTaskParticipant(userID string) bson.D {
	return bson.D{{Key: "$match", Value: bson.D{
		{Key: "$or", Value: bson.A{
			bson.D{{Key: "stages.tasks.assignee", Value: userID}},
			bson.D{{Key: "stages.tasks.created_by", Value: userID}},
		}},
	}}}
}

// publicUserProjection is the member-safe shape user references are reduced
// to when joined into task rows.
func publicUserProjection() bson.D {
	return bson.D{{Key: "$project", Value: bson.D{
		{Key: "full_name", Value: 1},
		{Key: "username", Value: 1},
		{Key: "avatar", Value: 1},
		{Key: "_id", Value: 1},
		{Key: "email", Value: 1},
	}}}
}

func lookupUserRef(field string) bson.D {
	return bson.D{{Key: "$lookup", Value: bson.D{
		{Key: "from", Value: "users"},
		{Key: "let", Value: bson.D{{Key: "ref", Value: "$stages.tasks." + field}}},
		{Key: "pipeline", Value: bson.A{
			bson.D{{Key: "$match", Value: bson.D{
				{Key: "$expr", Value: bson.D{
					{Key: "$eq", Value: bson.A{"$_id", "$$ref"}},
				}},
			}}},
			publicUserProjection(),
		}},
		{Key: "as", Value: "stages.tasks." + field},
	}}}
}

// lookupTaskUsers joins creator and assignee identities into each task row,
// each reduced to the public projection.
func lookupTaskUsers() []bson.D {
	return []bson.D{
		lookupUserRef("created_by"),
		lookupUserRef("assignee"),
	}
}

// addTaskContext annotates each task row with its owning project and stage,
// and unpacks the single-element user lookups.
func addTaskContext() bson.D {
	return bson.D{{Key: "$addFields", Value: bson.D{
		{Key: "stages.tasks.project.id", Value: "$_id"},
		{Key: "stages.tasks.project.name", Value: "$name"},
		{Key: "stages.tasks.project.code", Value: "$code"},
		{Key: "stages.tasks.stage.id", Value: "$stages._id"},
		{Key: "stages.tasks.stage.name", Value: "$stages.name"},
		{Key: "stages.tasks.created_by", Value: bson.D{
			{Key: "$arrayElemAt", Value: bson.A{"$stages.tasks.created_by", 0}},
		}},
		{Key: "stages.tasks.assignee", Value: bson.D{
			{Key: "$arrayElemAt", Value: bson.A{"$stages.tasks.assignee", 0}},
		}},
	}}}
}

// stripTaskSubdocs drops comment and activity id lists from the view rows.
func stripTaskSubdocs() bson.D {
	return bson.D{{Key: "$project", Value: bson.D{
		{Key: "stages.tasks.comments", Value: 0},
		{Key: "stages.tasks.activities", Value: 0},
	}}}
}

// groupTaskPage collapses the task rows into the result envelope.
func groupTaskPage() bson.D {
	return bson.D{{Key: "$group", Value: bson.D{
		{Key: "_id", Value: nil},
		{Key: "tasks", Value: bson.D{{Key: "$push", Value: "$stages.tasks"}}},
		{Key: "total", Value: bson.D{{Key: "$sum", Value: 1}}},
	}}}
}

// projectTaskPage shapes the final task envelope.
func projectTaskPage() bson.D {
	return bson.D{{Key: "$project", Value: bson.D{
		{Key: "tasks", Value: 1},
		{Key: "total", Value: 1},
		{Key: "_id", Value: 0},
	}}}
}

// TaskListPipeline builds the "all tasks across my projects" view: the stage
// join and flatten as above, then a task join and flatten, identity lookups,
// and the counting envelope.
func TaskListPipeline(p TaskListParams) mongo.Pipeline {
	pipeline := mongo.Pipeline{
		matchMember(p.UserID),
		lookupStages(),
		sortProjectsByRecency(),
		unwindStages(),
		lookupStageTasks(),
		unwindStageTasks(),
	}
	if p.ParticipantOnly {
		pipeline = append(pipeline, matchTaskParticipant(p.UserID))
	}
	pipeline = append(pipeline, lookupTaskUsers()...)
	pipeline = append(pipeline,
		addTaskContext(),
		stripTaskSubdocs(),
		groupTaskPage(),
		projectTaskPage(),
	)
	return pipeline
}
