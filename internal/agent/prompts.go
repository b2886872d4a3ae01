package agent

import "fmt"

// routeMarker is the token the classification step emits when a question
// needs database access. It doubles as the name of the first tool the
// machine will invoke.
const routeMarker = "list_tables"

const classifyPrompt = `You are a health informatics AI. You will be given a user query and you must decide whether it is about the patient's information, such as treatment, pathology, phone number, address and so on.
If the query is about the patient's information, return "list_tables". If not, answer the question as briefly as you can.`

const generatePromptFmt = `You are an agent designed to interact with a SQL database.
Given an input question about the patient with patient_id=%d, create a syntactically correct %s query to run, then look at the results of the query and return the answer. Unless the user specifies a specific number of examples they wish to obtain, always limit your query to at most %d results.

You can order the results by a relevant column to return the most interesting examples in the database. Never query for all the columns from a specific table, only ask for the relevant columns given the question.
DO NOT make any DML statements (INSERT, UPDATE, DELETE, DROP etc.) to the database.`

const checkPromptFmt = `You are a SQL expert with a strong attention to detail.
Double check the %s query for common mistakes, including:
- Using NOT IN with NULL values
- Using UNION when UNION ALL should have been used
- Using BETWEEN for exclusive ranges
- Data type mismatch in predicates
- Properly quoting identifiers
- Using the correct number of arguments for functions
- Casting to the correct data type
- Using the proper columns for joins

If there are any of the above mistakes, rewrite the query. If there are no mistakes, just reproduce the original query.

You will call the appropriate tool to execute the query after running this check.`

func generatePrompt(patientID int, dialect string, rowLimit int) string {
	return fmt.Sprintf(generatePromptFmt, patientID, dialect, rowLimit)
}

func checkPrompt(dialect string) string {
	return fmt.Sprintf(checkPromptFmt, dialect)
}
