package querycache

import (
	"fmt"
	"strconv"
)

// Query operations. Invalidation by operation drops every key sharing it.
const (
	OpTasks   = "tasks"
	OpTask    = "task"
	OpFAQ     = "faq"
	OpCluster = "cluster"
)

// Key identifies a cached query: an operation plus its encoded arguments.
type Key struct {
	Op   string
	Args string
}

func (k Key) String() string {
	if k.Args == "" {
		return k.Op
	}
	return k.Op + ":" + k.Args
}

// TasksKey identifies one page of the job list under the given filters.
func TasksKey(page, pageSize int, lang, status string) Key {
	return Key{Op: OpTasks, Args: fmt.Sprintf("%d:%d:%s:%s", page, pageSize, strconv.Quote(lang), strconv.Quote(status))}
}

// TaskKey identifies a single job.
func TaskKey(taskID string) Key {
	return Key{Op: OpTask, Args: taskID}
}

// FAQKey identifies the FAQ list of a job.
func FAQKey(taskID string) Key {
	return Key{Op: OpFAQ, Args: taskID}
}

// ClusterKey identifies the ticket detail of a cluster.
func ClusterKey(clusterID string) Key {
	return Key{Op: OpCluster, Args: clusterID}
}
