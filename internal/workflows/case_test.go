package workflows

import (
	"context"
	"errors"
	"time"

	"github.com/stretchr/testify/mock"
	"go.temporal.io/sdk/client"

	"case-outreach-service/internal/modal"
)

func (s *WorkflowTestSuite) caseInput() CaseInput {
	return CaseInput{
		CaseID:   "c1",
		Outreach: OutreachInput{MaxAttempts: 2, Templates: []string{"hi"}},
		Schedule: fastSchedule,
	}
}

func (s *WorkflowTestSuite) resolveAt(d time.Duration, ids ...string) {
	s.env.RegisterDelayedCallback(func() {
		for _, id := range ids {
			s.NoError(s.env.SignalWorkflowByID(VerificationWorkflowID("c1"), VerificationResolvedSignal,
				modal.VerificationResolution{VerificationID: id, Approved: true}))
		}
	}, d)
}

func (s *WorkflowTestSuite) TestCase_IsolatesProviderFailures() {
	s.env.SetStartWorkflowOptions(client.StartWorkflowOptions{ID: CaseWorkflowID("c1")})
	s.mockOutreach(modal.CallStatus{Completed: true, TalkedToHuman: true}, modal.CallStatus{})
	s.mockResolution()
	s.env.OnActivity(a.ExtractProviders, mock.Anything, mock.Anything).Return([]string{"v1", "v2"}, nil)
	s.env.OnActivity(a.ListVerifiedProviders, mock.Anything, mock.Anything).Return([]modal.Provider{
		{ID: "pa", Name: "Provider A"},
		{ID: "pb", Name: "Provider B"},
	}, nil)
	dispatches := s.mockRecordsWith(modal.ContactInfo{Fax: "+13125550101"}, func(id string) modal.SignatureState {
		if id == "sig-pa" {
			return refused
		}
		return signed
	})
	s.env.OnActivity(a.AnalyzeTranscript, mock.Anything, mock.Anything).Return(&modal.CaseAssessment{Summary: "rear-end collision"}, nil)
	s.resolveAt(2*time.Hour, "v1", "v2")

	s.env.ExecuteWorkflow(CaseWorkflow, s.caseInput())

	s.Require().NoError(s.env.GetWorkflowError())
	var res CaseResult
	s.Require().NoError(s.env.GetWorkflowResult(&res))
	s.False(res.Success)
	s.Equal(2, res.ProvidersProcessed)
	s.Require().Len(res.Results, 2)
	s.Equal("pa", res.Results[0].ProviderID)
	s.False(res.Results[0].Success)
	s.Contains(res.Results[0].Error, ErrSignatureDeclined)
	s.Equal("pb", res.Results[1].ProviderID)
	s.True(res.Results[1].Success)
	s.Equal("sig-pb", res.Results[1].RequestID)

	s.Require().Equal(1, dispatches.len())
	s.Equal("sig-pb", dispatches.at(0).(modal.DispatchInput).RequestID)
	s.Require().NotNil(res.Verification)
	s.ElementsMatch([]string{"v1", "v2"}, res.Verification.Approved)
	s.True(res.Outreach.PickedUp)
	s.env.AssertActivityNumberOfCalls(s.T(), "AnalyzeTranscript", 1)
}

func (s *WorkflowTestSuite) TestCase_OutreachFailureShortCircuits() {
	s.mockOutreach(modal.CallStatus{}, voicemail)

	s.env.ExecuteWorkflow(CaseWorkflow, s.caseInput())

	s.requireFailureType(s.env.GetWorkflowError(), ErrNoContact)
	s.env.AssertActivityNumberOfCalls(s.T(), "ExtractProviders", 0)
	s.Require().Equal(1, s.failures.len())
	s.Contains(s.failures.at(0), "2 attempts")
}

func (s *WorkflowTestSuite) TestCase_SkipsGateWithoutPendingVerifications() {
	s.mockOutreach(modal.CallStatus{Completed: true, TalkedToHuman: true}, modal.CallStatus{})
	s.env.OnActivity(a.ExtractProviders, mock.Anything, mock.Anything).Return([]string{}, nil)
	s.env.OnActivity(a.ListVerifiedProviders, mock.Anything, mock.Anything).Return([]modal.Provider{}, nil)
	s.env.OnActivity(a.AnalyzeTranscript, mock.Anything, mock.Anything).Return(
		func(context.Context, modal.TranscriptInput) (*modal.CaseAssessment, error) {
			return nil, errors.New("model returned prose")
		})

	s.env.ExecuteWorkflow(CaseWorkflow, s.caseInput())

	s.Require().NoError(s.env.GetWorkflowError())
	var res CaseResult
	s.Require().NoError(s.env.GetWorkflowResult(&res))
	s.True(res.Success)
	s.Zero(res.ProvidersProcessed)
	s.Nil(res.Verification)
	s.env.AssertActivityNumberOfCalls(s.T(), "ApplyVerificationResolution", 0)
}

func (s *WorkflowTestSuite) TestCase_VerificationTimeoutFailsCase() {
	s.mockOutreach(modal.CallStatus{Completed: true, TalkedToHuman: true}, modal.CallStatus{})
	s.mockResolution()
	s.env.OnActivity(a.ExtractProviders, mock.Anything, mock.Anything).Return([]string{"v1", "v2"}, nil)
	s.resolveAt(2*time.Hour, "v1")

	in := s.caseInput()
	in.VerificationTimeout = 24 * time.Hour
	s.env.ExecuteWorkflow(CaseWorkflow, in)

	s.requireFailureType(s.env.GetWorkflowError(), ErrVerificationTimeout)
	s.env.AssertActivityNumberOfCalls(s.T(), "ListVerifiedProviders", 0)
	s.Require().Equal(1, s.failures.len())
	s.Contains(s.failures.at(0), "verification failed")
}

func (s *WorkflowTestSuite) TestCase_RegistersChildrenUnderParent() {
	s.env.SetStartWorkflowOptions(client.StartWorkflowOptions{ID: CaseWorkflowID("c1")})
	s.mockOutreach(modal.CallStatus{Completed: true, TalkedToHuman: true}, modal.CallStatus{})
	s.env.OnActivity(a.ExtractProviders, mock.Anything, mock.Anything).Return([]string{}, nil)
	s.env.OnActivity(a.ListVerifiedProviders, mock.Anything, mock.Anything).Return([]modal.Provider{{ID: "pa", Name: "A"}}, nil)
	s.mockRecords(modal.ContactInfo{Fax: "+13125550101"}, signed)
	s.env.OnActivity(a.AnalyzeTranscript, mock.Anything, mock.Anything).Return(&modal.CaseAssessment{}, nil)

	s.env.ExecuteWorkflow(CaseWorkflow, s.caseInput())
	s.Require().NoError(s.env.GetWorkflowError())

	parents := map[string]string{}
	for i := 0; i < s.registered.len(); i++ {
		in := s.registered.at(i).(modal.RegisterInstanceInput)
		if _, seen := parents[in.ID]; !seen {
			parents[in.ID] = in.ParentID
		}
		s.Equal("c1", in.EntityRef)
	}
	s.Equal("", parents[CaseWorkflowID("c1")])
	s.Equal(CaseWorkflowID("c1"), parents[OutreachWorkflowID("c1")])
	s.Equal(CaseWorkflowID("c1"), parents[RecordsWorkflowID("c1", "pa")])
}
