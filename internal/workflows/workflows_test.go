package workflows

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"case-outreach-service/internal/modal"
)

// recorder collects activity arguments from mock functions, which run off the workflow goroutine.
type recorder struct {
	mu    sync.Mutex
	calls []any
}

func (r *recorder) add(v any) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, v)
	return len(r.calls)
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func (r *recorder) at(i int) any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[i]
}

type WorkflowTestSuite struct {
	suite.Suite
	testsuite.WorkflowTestSuite
	env *testsuite.TestWorkflowEnvironment

	registered *recorder
	terminal   *recorder
	failures   *recorder

	// onDispatch runs inside the fax and email dispatch mocks when set.
	onDispatch func()
}

func TestWorkflowTestSuite(t *testing.T) {
	suite.Run(t, new(WorkflowTestSuite))
}

func (s *WorkflowTestSuite) SetupTest() {
	s.env = s.NewTestWorkflowEnvironment()
	s.env.RegisterWorkflow(CaseWorkflow)
	s.env.RegisterWorkflow(OutreachWorkflow)
	s.env.RegisterWorkflow(VerificationWorkflow)
	s.env.RegisterWorkflow(RecordsWorkflow)

	s.onDispatch = nil
	s.registered = &recorder{}
	s.terminal = &recorder{}
	s.failures = &recorder{}
	s.env.OnActivity(a.RegisterInstance, mock.Anything, mock.Anything).Return(
		func(_ context.Context, in modal.RegisterInstanceInput) error {
			s.registered.add(in)
			return nil
		})
	s.env.OnActivity(a.UpdateInstanceStatus, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	s.env.OnActivity(a.MarkInstanceTerminal, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(
		func(_ context.Context, id string, status modal.InstanceStatus, msg string) error {
			s.terminal.add(fmt.Sprintf("%s=%s", id, status))
			return nil
		})
	s.env.OnActivity(a.RecordCaseFailure, mock.Anything, mock.Anything, mock.Anything).Return(
		func(_ context.Context, caseID, reason string) error {
			s.failures.add(reason)
			return nil
		})
	s.env.OnActivity(a.UpdateCaseStatus, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
}

// SetupSubTest gives every s.Run case a fresh environment.
func (s *WorkflowTestSuite) SetupSubTest() {
	s.SetupTest()
}

// mockOutreach wires messaging and call placement. Calls get ids conv-1, conv-2, ...
func (s *WorkflowTestSuite) mockOutreach(stored, polled modal.CallStatus) (messages, calls *recorder) {
	messages, calls = &recorder{}, &recorder{}
	s.env.OnActivity(a.SendMessage, mock.Anything, mock.Anything).Return(
		func(_ context.Context, in modal.SendMessageInput) (string, error) {
			return fmt.Sprintf("msg-%d", messages.add(in)), nil
		})
	s.env.OnActivity(a.PlaceCall, mock.Anything, mock.Anything).Return(
		func(_ context.Context, in modal.PlaceCallInput) (string, error) {
			return fmt.Sprintf("conv-%d", calls.add(in)), nil
		})
	s.env.OnActivity(a.GetStoredCallStatus, mock.Anything, mock.Anything).Return(stored, nil)
	s.env.OnActivity(a.PollCallStatus, mock.Anything, mock.Anything).Return(polled, nil)
	return messages, calls
}

func (s *WorkflowTestSuite) requireFailureType(err error, errType string) *temporal.ApplicationError {
	s.Require().Error(err)
	var appErr *temporal.ApplicationError
	s.Require().True(errors.As(err, &appErr), "expected application error, got %v", err)
	s.Equal(errType, appErr.Type())
	return appErr
}

var voicemail = modal.CallStatus{Completed: true}

func (s *WorkflowTestSuite) TestOutreach_NoContactAfterMaxAttempts() {
	messages, calls := s.mockOutreach(modal.CallStatus{}, voicemail)

	s.env.ExecuteWorkflow(OutreachWorkflow, OutreachInput{
		CaseID:      "c1",
		MaxAttempts: 3,
		Templates:   []string{"first", "second"},
	})

	s.True(s.env.IsWorkflowCompleted())
	s.Require().NoError(s.env.GetWorkflowError())
	var res OutreachResult
	s.Require().NoError(s.env.GetWorkflowResult(&res))
	s.False(res.Success)
	s.False(res.PickedUp)
	s.Equal(3, res.Attempts)
	s.Equal(3, calls.len())
	s.Equal(3, messages.len())
	s.Equal("first", messages.at(0).(modal.SendMessageInput).Template)
	s.Equal("second", messages.at(2).(modal.SendMessageInput).Template)

	s.Require().Equal(1, s.failures.len())
	s.Contains(s.failures.at(0), "3 attempts")
}

func (s *WorkflowTestSuite) TestOutreach_PickupOnSecondAttempt() {
	_, calls := s.mockOutreach(modal.CallStatus{}, modal.CallStatus{})
	s.env.SetStartWorkflowOptions(client.StartWorkflowOptions{ID: OutreachWorkflowID("c1")})

	s.env.RegisterDelayedCallback(func() {
		s.env.SignalWorkflow(CallCompletedSignal, modal.CallCompletionData{ConversationID: "conv-1"})
	}, 5*time.Minute)
	s.env.RegisterDelayedCallback(func() {
		s.env.SignalWorkflow(CallCompletedSignal, modal.CallCompletionData{ConversationID: "conv-2", TalkedToHuman: true})
	}, 24*time.Hour+10*time.Minute)

	s.env.ExecuteWorkflow(OutreachWorkflow, OutreachInput{CaseID: "c1", MaxAttempts: 5, Templates: []string{"hi"}})

	s.Require().NoError(s.env.GetWorkflowError())
	var res OutreachResult
	s.Require().NoError(s.env.GetWorkflowResult(&res))
	s.True(res.Success)
	s.True(res.PickedUp)
	s.Equal(2, res.Attempts)
	s.Equal("conv-2", res.ConversationID)
	s.Equal(2, calls.len())
	s.Equal(OutreachWorkflowID("c1"), calls.at(0).(modal.PlaceCallInput).WorkflowID)
	s.env.AssertActivityNumberOfCalls(s.T(), "GetStoredCallStatus", 0)
	s.Zero(s.failures.len())
}

func (s *WorkflowTestSuite) TestOutreach_IgnoresCompletionForOtherConversation() {
	s.mockOutreach(modal.CallStatus{}, modal.CallStatus{})

	s.env.RegisterDelayedCallback(func() {
		s.env.SignalWorkflow(CallCompletedSignal, modal.CallCompletionData{ConversationID: "conv-old", TalkedToHuman: true})
	}, 5*time.Minute)

	s.env.ExecuteWorkflow(OutreachWorkflow, OutreachInput{CaseID: "c1", MaxAttempts: 1, Templates: []string{"hi"}})

	var res OutreachResult
	s.Require().NoError(s.env.GetWorkflowResult(&res))
	s.False(res.Success)
	s.False(res.PickedUp)
	s.Equal(1, res.Attempts)
	s.env.AssertActivityNumberOfCalls(s.T(), "GetStoredCallStatus", 1)
	s.env.AssertActivityNumberOfCalls(s.T(), "PollCallStatus", 1)
}

func (s *WorkflowTestSuite) TestOutreach_StoreTierResolvesPickup() {
	s.mockOutreach(modal.CallStatus{Completed: true, TalkedToHuman: true}, modal.CallStatus{})

	s.env.ExecuteWorkflow(OutreachWorkflow, OutreachInput{CaseID: "c1", MaxAttempts: 3, Templates: []string{"hi"}})

	var res OutreachResult
	s.Require().NoError(s.env.GetWorkflowResult(&res))
	s.True(res.PickedUp)
	s.Equal(1, res.Attempts)
	s.env.AssertActivityNumberOfCalls(s.T(), "PollCallStatus", 0)
}

func (s *WorkflowTestSuite) TestOutreach_UserResponseEndsWait() {
	_, calls := s.mockOutreach(modal.CallStatus{}, voicemail)

	s.env.RegisterDelayedCallback(func() {
		s.env.SignalWorkflow(UserResponseSignal, modal.UserResponse{Message: "call me tomorrow"})
	}, 2*time.Hour)

	s.env.ExecuteWorkflow(OutreachWorkflow, OutreachInput{CaseID: "c1", MaxAttempts: 3, Templates: []string{"hi"}})

	var res OutreachResult
	s.Require().NoError(s.env.GetWorkflowResult(&res))
	s.True(res.Success)
	s.True(res.UserResponded)
	s.False(res.PickedUp)
	s.Equal(1, res.Attempts)
	s.Require().NotNil(res.Response)
	s.Equal("call me tomorrow", res.Response.Message)
	s.Equal(1, calls.len())
}

func (s *WorkflowTestSuite) TestOutreach_PauseHoldsNextStep() {
	_, calls := s.mockOutreach(modal.CallStatus{Completed: true, TalkedToHuman: true}, modal.CallStatus{})

	s.env.RegisterDelayedCallback(func() {
		s.env.SignalWorkflow(PauseSignal, modal.PauseSignal{Reason: "client asked"})
	}, 30*time.Second)
	s.env.RegisterDelayedCallback(func() {
		s.Zero(calls.len())
		val, err := s.env.QueryWorkflow(StateQuery)
		s.Require().NoError(err)
		var st OutreachState
		s.Require().NoError(val.Get(&st))
		s.True(st.Paused)
		s.Equal(1, st.Attempt)
		s.env.SignalWorkflow(ResumeSignal, modal.ResumeSignal{ResumedBy: "ops"})
	}, 6*time.Hour)

	s.env.ExecuteWorkflow(OutreachWorkflow, OutreachInput{CaseID: "c1", MaxAttempts: 3, Templates: []string{"hi"}})

	var res OutreachResult
	s.Require().NoError(s.env.GetWorkflowResult(&res))
	s.True(res.PickedUp)
	s.Equal(1, calls.len())
}

func (s *WorkflowTestSuite) mockResolution() {
	s.env.OnActivity(a.ApplyVerificationResolution, mock.Anything, mock.Anything).Return(
		func(_ context.Context, r modal.VerificationResolution) (modal.ResolutionOutcome, error) {
			return modal.ResolutionOutcome{VerificationID: r.VerificationID, Approved: r.Approved}, nil
		})
}

func (s *WorkflowTestSuite) TestVerification_ResolvesInAnyOrder() {
	type resolution struct {
		id       string
		approved bool
	}
	cases := []struct {
		name     string
		signals  []resolution
		approved []string
		rejected []string
	}{
		{
			name: "reject then approve",
			// The unknown id is ignored and the second decision on v2 keeps the first.
			signals:  []resolution{{"v2", false}, {"unknown", true}, {"v2", true}, {"v1", true}},
			approved: []string{"v1"},
			rejected: []string{"v2"},
		},
		{
			name:     "approve both",
			signals:  []resolution{{"v2", true}, {"v1", true}},
			approved: []string{"v2", "v1"},
			rejected: []string{},
		},
		{
			name:     "reject both",
			signals:  []resolution{{"v1", false}, {"v2", false}},
			approved: []string{},
			rejected: []string{"v1", "v2"},
		},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			s.mockResolution()
			for i, r := range tc.signals {
				s.env.RegisterDelayedCallback(func() {
					s.env.SignalWorkflow(VerificationResolvedSignal, modal.VerificationResolution{VerificationID: r.id, Approved: r.approved})
				}, time.Duration(i+1)*time.Hour)
			}

			s.env.ExecuteWorkflow(VerificationWorkflow, VerificationInput{CaseID: "c1", VerificationIDs: []string{"v1", "v2"}})

			s.Require().NoError(s.env.GetWorkflowError())
			var res VerificationResult
			s.Require().NoError(s.env.GetWorkflowResult(&res))
			s.Equal(tc.approved, res.Approved)
			s.Equal(tc.rejected, res.Rejected)
			s.env.AssertActivityNumberOfCalls(s.T(), "ApplyVerificationResolution", 2)
		})
	}
}

func (s *WorkflowTestSuite) TestVerification_Timeout() {
	s.mockResolution()
	s.env.RegisterDelayedCallback(func() {
		s.env.SignalWorkflow(VerificationResolvedSignal, modal.VerificationResolution{VerificationID: "v1", Approved: true})
	}, time.Hour)

	s.env.ExecuteWorkflow(VerificationWorkflow, VerificationInput{
		CaseID:          "c1",
		VerificationIDs: []string{"v1", "v2"},
		Timeout:         48 * time.Hour,
	})

	appErr := s.requireFailureType(s.env.GetWorkflowError(), ErrVerificationTimeout)
	s.Contains(appErr.Error(), "1 of 2")
	s.Contains(s.terminal.at(s.terminal.len()-1), "=failed")
}

var fastSchedule = PollSchedule{FastAttempts: 2, FastInterval: time.Minute, SlowAttempts: 2, SlowInterval: time.Hour}

func (s *WorkflowTestSuite) mockRecords(contact modal.ContactInfo, states ...modal.SignatureState) (polls, dispatches *recorder) {
	polls = &recorder{}
	dispatches = s.mockRecordsWith(contact, func(id string) modal.SignatureState {
		n := polls.add(id)
		if n > len(states) {
			return modal.SignatureState{}
		}
		return states[n-1]
	})
	return polls, dispatches
}

// mockRecordsWith answers every signature poll with poll.
func (s *WorkflowTestSuite) mockRecordsWith(contact modal.ContactInfo, poll func(requestID string) modal.SignatureState) (dispatches *recorder) {
	dispatches = &recorder{}
	s.env.OnActivity(a.CreateAuthorization, mock.Anything, mock.Anything).Return(
		func(_ context.Context, in modal.CreateAuthorizationInput) (string, error) {
			return "sig-" + in.ProviderID, nil
		})
	s.env.OnActivity(a.PollSignature, mock.Anything, mock.Anything).Return(
		func(_ context.Context, id string) (modal.SignatureState, error) {
			return poll(id), nil
		})
	s.env.OnActivity(a.GetProviderContact, mock.Anything, mock.Anything).Return(
		func(_ context.Context, id string) (modal.Provider, error) {
			return modal.Provider{ID: id, Name: "Dr " + id, Contact: contact}, nil
		})
	dispatch := func(prefix string) func(context.Context, modal.DispatchInput) (string, error) {
		return func(_ context.Context, in modal.DispatchInput) (string, error) {
			if s.onDispatch != nil {
				s.onDispatch()
			}
			dispatches.add(in)
			return prefix + in.RequestID, nil
		}
	}
	s.env.OnActivity(a.DispatchFax, mock.Anything, mock.Anything).Return(dispatch("fax-"))
	s.env.OnActivity(a.DispatchEmail, mock.Anything, mock.Anything).Return(dispatch("email-"))
	return dispatches
}

var (
	pending = modal.SignatureState{}
	signed  = modal.SignatureState{Done: true, Signed: true}
	refused = modal.SignatureState{Done: true}
)

func (s *WorkflowTestSuite) TestRecords_FaxAfterSignature() {
	polls, dispatches := s.mockRecords(modal.ContactInfo{Fax: "+13125550101", Email: "r@example.com", Phone: "+13125550100"}, pending, pending, signed)
	s.env.OnActivity(a.PlaceFollowUpCall, mock.Anything, mock.Anything).Return("conv-f", nil)

	s.env.ExecuteWorkflow(RecordsWorkflow, RecordsInput{CaseID: "c1", ProviderID: "p1", ProviderName: "Dr p1", Schedule: fastSchedule})

	s.Require().NoError(s.env.GetWorkflowError())
	var res RecordsResult
	s.Require().NoError(s.env.GetWorkflowResult(&res))
	s.True(res.Success)
	s.Equal("sig-p1", res.RequestID)
	s.Equal(modal.ChannelFax, res.Channel)
	s.Equal("fax-sig-p1", res.DispatchID)
	s.Equal("conv-f", res.FollowUpConversationID)
	s.Equal(3, polls.len())
	s.Require().Equal(1, dispatches.len())
	s.Equal("+13125550101", dispatches.at(0).(modal.DispatchInput).Contact)
	s.env.AssertActivityNumberOfCalls(s.T(), "DispatchEmail", 0)
}

func (s *WorkflowTestSuite) TestRecords_EmailWhenNoFax() {
	_, dispatches := s.mockRecords(modal.ContactInfo{Email: "records@example.com"}, signed)

	s.env.ExecuteWorkflow(RecordsWorkflow, RecordsInput{CaseID: "c1", ProviderID: "p1", Schedule: fastSchedule})

	var res RecordsResult
	s.Require().NoError(s.env.GetWorkflowResult(&res))
	s.Equal(modal.ChannelEmail, res.Channel)
	s.Equal("email-sig-p1", res.DispatchID)
	s.Equal(1, dispatches.len())
	s.env.AssertActivityNumberOfCalls(s.T(), "PlaceFollowUpCall", 0)
}

func (s *WorkflowTestSuite) TestRecords_FollowUpFailureIsIgnored() {
	s.mockRecords(modal.ContactInfo{Fax: "+13125550101", Phone: "+13125550100"}, signed)
	s.env.OnActivity(a.PlaceFollowUpCall, mock.Anything, mock.Anything).Return("", errors.New("voice platform down"))

	s.env.ExecuteWorkflow(RecordsWorkflow, RecordsInput{CaseID: "c1", ProviderID: "p1", Schedule: fastSchedule})

	var res RecordsResult
	s.Require().NoError(s.env.GetWorkflowResult(&res))
	s.True(res.Success)
	s.Empty(res.FollowUpConversationID)
}

func (s *WorkflowTestSuite) TestRecords_PauseDuringDispatchHoldsFollowUpCall() {
	s.mockRecords(modal.ContactInfo{Fax: "+13125550101", Phone: "+13125550100"}, signed)
	s.onDispatch = func() {
		s.env.SignalWorkflow(PauseSignal, modal.PauseSignal{Reason: "provider asked for no calls"})
	}
	s.env.RegisterDelayedCallback(func() {
		s.env.SignalWorkflow(ResumeSignal, modal.ResumeSignal{ResumedBy: "ops"})
	}, 10*time.Hour)

	pausedAtCall := &recorder{}
	s.env.OnActivity(a.PlaceFollowUpCall, mock.Anything, mock.Anything).Return(
		func(_ context.Context, _ modal.FollowUpCallInput) (string, error) {
			var st RecordsState
			if v, err := s.env.QueryWorkflow(StateQuery); err == nil {
				_ = v.Get(&st)
			}
			pausedAtCall.add(st.Paused)
			return "conv-f", nil
		})
	start := s.env.Now()

	s.env.ExecuteWorkflow(RecordsWorkflow, RecordsInput{CaseID: "c1", ProviderID: "p1", Schedule: fastSchedule})

	s.Require().NoError(s.env.GetWorkflowError())
	s.Require().Equal(1, pausedAtCall.len())
	s.Equal(false, pausedAtCall.at(0))
	s.GreaterOrEqual(s.env.Now().Sub(start), 10*time.Hour)
}

func (s *WorkflowTestSuite) TestRecords_DeclinedFailsImmediately() {
	polls, dispatches := s.mockRecords(modal.ContactInfo{Fax: "+13125550101"}, pending, refused)

	s.env.ExecuteWorkflow(RecordsWorkflow, RecordsInput{CaseID: "c1", ProviderID: "p1", Schedule: fastSchedule})

	s.requireFailureType(s.env.GetWorkflowError(), ErrSignatureDeclined)
	s.Equal(2, polls.len())
	s.Zero(dispatches.len())
}

func (s *WorkflowTestSuite) TestRecords_SignatureTimeoutAfterBothPhases() {
	polls, dispatches := s.mockRecords(modal.ContactInfo{Fax: "+13125550101"})

	s.env.ExecuteWorkflow(RecordsWorkflow, RecordsInput{CaseID: "c1", ProviderID: "p1", Schedule: fastSchedule})

	s.requireFailureType(s.env.GetWorkflowError(), ErrSignatureTimeout)
	s.Equal(4, polls.len())
	s.Zero(dispatches.len())
}

func (s *WorkflowTestSuite) TestRecords_NoContactMethod() {
	_, dispatches := s.mockRecords(modal.ContactInfo{Phone: "+13125550100"}, signed)

	s.env.ExecuteWorkflow(RecordsWorkflow, RecordsInput{CaseID: "c1", ProviderID: "p1", Schedule: fastSchedule})

	s.requireFailureType(s.env.GetWorkflowError(), ErrNoContactMethod)
	s.Zero(dispatches.len())
}

func (s *WorkflowTestSuite) TestScheduleFor() {
	s.Equal(ProductionSchedule, ScheduleFor("production"))
	s.Equal(DemoSchedule, ScheduleFor("demo"))
	s.Equal(DemoSchedule, ScheduleFor(""))
	s.Equal(6*time.Hour, ProductionSchedule.FastInterval)
}
