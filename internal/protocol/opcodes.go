package protocol

// Opcode identifies a request type; it is always emitted as the first
// tagged field of a request frame. The numeric values below are the
// driver's own assignment: the exact numbers for a couple of opcodes are
// inconsistent across protocol documentation revisions (GetCatalog and
// GetCurrentSchema share opcode 101/102 inconsistently depending on the
// source); DESIGN.md records that this table is the driver's working
// assignment for protocol version 11, not a value independently confirmed
// against a live Transaction Engine.
type Opcode int

const (
	OpConnect Opcode = 1
	OpOpenDatabase Opcode = 2
	OpAuthentication Opcode = 3
	OpCloseConnection Opcode = 4

	OpCreateStatement Opcode = 10
	OpPrepareStatement Opcode = 11
	OpPrepareStatementKeys Opcode = 12
	OpPrepareStatementKeyIds Opcode = 13
	OpPrepareStatementKeyNames Opcode = 14
	OpCloseStatement Opcode = 15

	OpExecute Opcode = 20
	OpExecuteQuery Opcode = 21
	OpExecutePreparedStatement Opcode = 22
	OpExecutePreparedQuery Opcode = 23
	OpExecuteBatchStatement Opcode = 24
	OpExecuteBatchPreparedStatement Opcode = 25

	OpNext Opcode = 30
	OpCloseResultSet Opcode = 31
	OpGetMetaData Opcode = 32
	OpGetGeneratedKeys Opcode = 33

	OpCommitTransaction Opcode = 40
	OpRollbackTransaction Opcode = 41
	OpSetAutoCommit Opcode = 42
	OpSetReadOnly Opcode = 43
	OpSetTransactionIsolation Opcode = 44
	OpSupportTransactionIsolation Opcode = 45
	OpSetSavePoint Opcode = 46
	OpReleaseSavePoint Opcode = 47
	OpRollbackToSavePoint Opcode = 48

	// OpGetCatalog and OpGetCurrentSchema are ambiguous between 101 and
	// 102 across documentation revisions. This assignment is the driver's
	// choice, not a verified fact; see DESIGN.md.
	OpGetCatalog Opcode = 101
	OpGetCurrentSchema Opcode = 102

	OpPing Opcode = 110
)

func (o Opcode) String() string {
	switch o {
	case OpConnect:
		return "Connect"
	case OpOpenDatabase:
		return "OpenDatabase"
	case OpAuthentication:
		return "Authentication"
	case OpCloseConnection:
		return "CloseConnection"
	case OpCreateStatement:
		return "CreateStatement"
	case OpPrepareStatement:
		return "PrepareStatement"
	case OpPrepareStatementKeys:
		return "PrepareStatementKeys"
	case OpPrepareStatementKeyIds:
		return "PrepareStatementKeyIds"
	case OpPrepareStatementKeyNames:
		return "PrepareStatementKeyNames"
	case OpCloseStatement:
		return "CloseStatement"
	case OpExecute:
		return "Execute"
	case OpExecuteQuery:
		return "ExecuteQuery"
	case OpExecutePreparedStatement:
		return "ExecutePreparedStatement"
	case OpExecutePreparedQuery:
		return "ExecutePreparedQuery"
	case OpExecuteBatchStatement:
		return "ExecuteBatchStatement"
	case OpExecuteBatchPreparedStatement:
		return "ExecuteBatchPreparedStatement"
	case OpNext:
		return "Next"
	case OpCloseResultSet:
		return "CloseResultSet"
	case OpGetMetaData:
		return "GetMetaData"
	case OpGetGeneratedKeys:
		return "GetGeneratedKeys"
	case OpCommitTransaction:
		return "CommitTransaction"
	case OpRollbackTransaction:
		return "RollbackTransaction"
	case OpSetAutoCommit:
		return "SetAutoCommit"
	case OpSetReadOnly:
		return "SetReadOnly"
	case OpSetTransactionIsolation:
		return "SetTransactionIsolation"
	case OpSupportTransactionIsolation:
		return "SupportTransactionIsolation"
	case OpSetSavePoint:
		return "SetSavePoint"
	case OpReleaseSavePoint:
		return "ReleaseSavePoint"
	case OpRollbackToSavePoint:
		return "RollbackToSavePoint"
	case OpGetCatalog:
		return "GetCatalog"
	case OpGetCurrentSchema:
		return "GetCurrentSchema"
	case OpPing:
		return "Ping"
	default:
		return "Opcode(?)"
	}
}
