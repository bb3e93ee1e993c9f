package tcpm

// Timing constants from USB-PD, all in milliseconds unless noted. Names
// follow the PD_T_* convention used throughout §4.7 and §8 of the spec.
const (
	tCCDebounce       = 100  // PD_T_CC_DEBOUNCE: CC must be stable this long before SRC_ATTACHED
	tPDDebounce       = 20   // PD_T_PD_DEBOUNCE: used for short CC glitches
	tSendSourceCap    = 100  // PD_T_SEND_SOURCE_CAP: period between unanswered SOURCE_CAP retries
	tSinkWaitCap      = 500  // PD_T_SINK_WAIT_CAP: sink's deadline to receive a first SOURCE_CAP
	tSenderResponse   = 30   // PD_T_SENDER_RESPONSE: deadline for ACCEPT/REJECT/WAIT after REQUEST
	tSrcTransition    = 35   // PD_T_SRC_TRANSITION: source's deadline to apply a new contract
	tPSTransition     = 550  // PD_T_PS_TRANSITION: sink's deadline to see PS_RDY after ACCEPT
	tPSSourceOn       = 400  // PD_T_PS_SOURCE_ON: sink's deadline to see VBUS after attach
	tPSHardReset      = 30   // PD_T_PS_HARD_RESET: sink's wait before assuming VBUS will drop
	tSafe0V           = 650  // PD_T_SAFE_0V: max time for VBUS to fall below vSafe0V
	tSrcRecover       = 750  // PD_T_SRC_RECOVER: source's VBUS-off dwell during hard reset
	tSrcRecoverMax    = 1000 // PD_T_SRC_RECOVER_MAX: sink's max wait for VBUS to reappear
	tSrcTurnOn        = 275  // PD_T_SRC_TURN_ON: additional settle time once VBUS reappears
	tErrorRecovery    = 25   // PD_T_ERROR_RECOVERY: CC held open before leaving PORT_RESET
	tNewSourceCapWait = 200  // SRC_WAIT_NEW_CAPABILITIES dwell before SOURCE_CAP is re-sent

	nCapsCount      = 25 // PD_N_CAPS_COUNT: max unanswered SOURCE_CAP retries before giving up on PD
	nHardResetCount = 2  // PD_N_HARD_RESET_COUNT: max hard resets before escalating further

	// pollEventTimeout bounds poll_event_cnt in the outer poll loop (§4.8).
	pollEventTimeout = 2000
)
