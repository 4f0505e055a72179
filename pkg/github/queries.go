package github

// GraphQL documents used by the resolver. Every query selects rateLimit so
// the budget refreshes from each response.

const repositoryWorkflowsQuery = `
query RepositoryWorkflows($owner: String!, $name: String!) {
  repository(owner: $owner, name: $name) {
    nameWithOwner
    isArchived
    object(expression: "HEAD:.github/workflows") {
      ... on Tree {
        entries {
          name
          type
          object {
            ... on Blob {
              text
            }
          }
        }
      }
    }
  }
  rateLimit {
    cost
    remaining
    resetAt
  }
}`

const organizationRepositoriesQuery = `
query OrganizationRepositories($login: String!, $pageSize: Int!, $cursor: String) {
  organization(login: $login) {
    repositories(first: $pageSize, after: $cursor, ownerAffiliations: OWNER) {
      nodes {
        name
        owner {
          login
        }
        isArchived
        isEmpty
      }
      pageInfo {
        hasNextPage
        endCursor
      }
    }
  }
  rateLimit {
    cost
    remaining
    resetAt
  }
}`

const userRepositoriesQuery = `
query UserRepositories($login: String!, $pageSize: Int!, $cursor: String) {
  user(login: $login) {
    repositories(first: $pageSize, after: $cursor, ownerAffiliations: OWNER) {
      nodes {
        name
        owner {
          login
        }
        isArchived
        isEmpty
      }
      pageInfo {
        hasNextPage
        endCursor
      }
    }
  }
  rateLimit {
    cost
    remaining
    resetAt
  }
}`

const ownerExistsQuery = `
query OwnerExists($login: String!) {
  user(login: $login) {
    login
  }
  organization(login: $login) {
    login
  }
  rateLimit {
    cost
    remaining
    resetAt
  }
}`
