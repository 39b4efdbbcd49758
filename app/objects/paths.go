package objects

import (
	"path"
)

func taskPath(runID, jobID, partitionID, taskID string) string {
	return path.Join(runID, jobID, partitionID, taskID)
}

func TaskLogPath(runID, jobID, partitionID, taskID string) string {
	return path.Join("logs", taskPath(runID, jobID, partitionID, taskID), "task-log.txt")
}

func TaskInputPath(runID, jobID, partitionID, taskID string) string {
	return path.Join("run", taskPath(runID, jobID, partitionID, taskID), "input")
}

func TaskOutputPath(runID, jobID, partitionID, taskID string) string {
	return path.Join("run", taskPath(runID, jobID, partitionID, taskID), "output")
}

func TaskStatusPrefix(runID, jobID, partitionID, taskID string) string {
	return path.Join("run", taskPath(runID, jobID, partitionID, taskID), "status")
}

func TaskStatusPath(prefix, rand string) string {
	return path.Join(prefix, "status-"+rand+".txt")
}

func WorkflowDocumentPath(runID string) string {
	return path.Join("workflows", runID, "workflow.yaml")
}

func ResolvedWorkflowDocumentPath(runID string) string {
	return path.Join("workflows", runID, "workflow-resolved.yaml")
}

func CodePath(digest, name string) string {
	return path.Join("code", digest, path.Base(name))
}
