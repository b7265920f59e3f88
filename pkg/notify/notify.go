/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package notify is the outbound user-notification boundary: a buffered
// producer queue drained by one goroutine, matching the source's Notifier
// thread.
package notify

import "fmt"

// Message is a single outbound user notification.
type Message struct {
	UserName string
	JobID    string
	Body     string
}

// Notifier accepts messages for asynchronous delivery.
type Notifier interface {
	Notify(msg Message)
	Start()
}

// Queue is a buffered-channel Notifier drained by one background goroutine,
// matching "a producer queue for outbound messages" (spec.md §5).
type Queue struct {
	messages chan Message
	deliver  func(Message)
}

// NewQueue creates a Queue with the given buffer size and delivery
// function (e.g. an SMTPNotifier.Deliver or a test spy).
func NewQueue(bufferSize int, deliver func(Message)) *Queue {
	return &Queue{messages: make(chan Message, bufferSize), deliver: deliver}
}

func (q *Queue) Notify(msg Message) {
	select {
	case q.messages <- msg:
	default:
		// Queue full: drop rather than block the calling tick, matching the
		// at-most-effort delivery semantics of a best-effort notifier.
	}
}

func (q *Queue) Start() {
	go func() {
		for msg := range q.messages {
			q.deliver(msg)
		}
	}()
}

// NewJobStateChangeMessage mirrors notify.new_job_state_change_message.
func NewJobStateChangeMessage(userName, jobID, state string) Message {
	return Message{
		UserName: userName,
		JobID:    jobID,
		Body:     fmt.Sprintf("Job %s changed state to %s", jobID, state),
	}
}

// NewJobKilledMessage mirrors notify.new_job_killed_message.
func NewJobKilledMessage(userName, jobID, reason string) Message {
	return Message{
		UserName: userName,
		JobID:    jobID,
		Body:     fmt.Sprintf("Job %s was killed: %s", jobID, reason),
	}
}
